package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"

	"github.com/xenking/fishnet/internal/domain/product"
	"github.com/xenking/fishnet/internal/domain/sale"
)

// ndjsonWriter gzips one JSON document per line.
type ndjsonWriter struct {
	zw  *pgzip.Writer
	e   jx.Encoder
	buf []byte
}

func (w *ndjsonWriter) line(encode func(e *jx.Encoder)) error {
	w.e.Reset()
	encode(&w.e)
	w.buf = append(append(w.buf[:0], w.e.Bytes()...), '\n')
	_, err := w.zw.Write(w.buf)
	return err
}

// streamBackup writes a gzip NDJSON attachment produced by each. A failure
// after the first byte aborts the connection so the client never sees a
// well-formed but truncated archive.
func streamBackup(c *gin.Context, name string, each func(w *ndjsonWriter) error) {
	filename := fmt.Sprintf("%s-%s.ndjson.gz", name, time.Now().UTC().Format("20060102T150405Z"))
	c.Header("Content-Type", "application/gzip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	w := &ndjsonWriter{zw: pgzip.NewWriter(c.Writer)}
	if err := each(w); err != nil {
		zctx.From(c.Request.Context()).Error("Backup aborted",
			zap.String("backup", name),
			zap.Error(err),
		)
		panic(http.ErrAbortHandler)
	}
	if err := w.zw.Close(); err != nil {
		zctx.From(c.Request.Context()).Warn("Backup flush failed",
			zap.String("backup", name),
			zap.Error(err),
		)
	}
}

func (h *Handler) backupSpecies(c *gin.Context) {
	streamBackup(c, "species", func(w *ndjsonWriter) error {
		return h.species.Each(c.Request.Context(), func(p *product.Product) error {
			return w.line(func(e *jx.Encoder) { h.encodeSpecies(e, p) })
		})
	})
}

func (h *Handler) backupSales(c *gin.Context) {
	streamBackup(c, "sales", func(w *ndjsonWriter) error {
		return h.sales.Each(c.Request.Context(), func(r *sale.Record) error {
			return w.line(func(e *jx.Encoder) { encodeSale(e, r) })
		})
	})
}
