package localfs

import (
	"sync"

	"github.com/parquet-go/parquet-go"
)

// columnChunkHelper wraps one parquet column chunk and keeps its open
// page buffers for reuse across reads within a single chunk file.
type columnChunkHelper struct {
	parquet.ColumnChunk
	pages     parquet.Pages
	firstPage parquet.Page
	err       error
}

var columnChunkHelperPool = sync.Pool{
	New: func() interface{} {
		return &columnChunkHelper{}
	},
}

func getColumnChunkHelper(cc parquet.ColumnChunk) *columnChunkHelper {
	h := columnChunkHelperPool.Get().(*columnChunkHelper)
	h.ColumnChunk = cc
	h.err = nil
	return h
}

func putColumnChunkHelper(h *columnChunkHelper) {
	// Clear the interface field so GC can release the underlying column chunk.
	h.ColumnChunk = nil
	columnChunkHelperPool.Put(h)
}

// nextPage wraps pages.ReadPage and helps reuse already open buffers.
// The caller takes ownership of the returned page and must Release it.
func (h *columnChunkHelper) nextPage() (parquet.Page, error) {
	if h.err != nil {
		return nil, h.err
	}

	if h.firstPage != nil {
		pg := h.firstPage
		h.firstPage = nil
		return pg, nil
	}

	if h.pages == nil {
		h.pages = h.Pages()
	}

	return h.pages.ReadPage()
}

func (h *columnChunkHelper) close() error {
	if h.firstPage != nil {
		parquet.Release(h.firstPage)
		h.firstPage = nil
	}

	if h.pages != nil {
		err := h.pages.Close()
		h.pages = nil
		return err
	}

	return nil
}
