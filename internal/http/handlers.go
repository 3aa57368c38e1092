package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedpool/internal/logging"
	"github.com/fyrsmithlabs/embedpool/pkg/embeddings"
	"github.com/fyrsmithlabs/embedpool/pkg/embedpool"
)

// maxInputs caps the number of inputs in one request.
const maxInputs = 1024

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Status:  "ok",
		Version: s.config.Version,
		Kind:    s.model.Kind().String(),
		Model:   s.model.Model(),
		Pool:    s.pool.Status(),
	})
}

func (s *Server) handleEmbed(c echo.Context) error {
	var req EmbedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := checkInputs(len(req.Inputs)); err != nil {
		return err
	}

	var resp EmbedResponse
	err := s.with(c, embedpool.KindText, func(ctx context.Context, emb *embedpool.Embedding) error {
		text, _ := emb.Text()
		var (
			vecs [][]float32
			err  error
		)
		switch req.Mode {
		case "", "passage":
			vecs, err = text.PassageEmbed(ctx, req.Inputs, req.BatchSize)
		case "raw":
			vecs, err = text.Embed(ctx, req.Inputs, req.BatchSize)
		case "query":
			vecs = make([][]float32, 0, len(req.Inputs))
			for _, in := range req.Inputs {
				v, qerr := text.QueryEmbed(ctx, in)
				if qerr != nil {
					return qerr
				}
				vecs = append(vecs, v)
			}
		default:
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
		}
		if err != nil {
			return err
		}
		resp = EmbedResponse{Model: string(text.Model()), Dimension: text.Dimension(), Embeddings: vecs}
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSparse(c echo.Context) error {
	var req SparseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := checkInputs(len(req.Inputs)); err != nil {
		return err
	}

	var resp SparseResponse
	err := s.with(c, embedpool.KindSparse, func(ctx context.Context, emb *embedpool.Embedding) error {
		sparse, _ := emb.Sparse()
		out, err := sparse.Embed(ctx, req.Inputs)
		if err != nil {
			return err
		}
		resp = SparseResponse{Model: string(sparse.Model()), Embeddings: out}
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleImage(c echo.Context) error {
	var req ImageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := checkInputs(len(req.Images)); err != nil {
		return err
	}

	var resp EmbedResponse
	err := s.with(c, embedpool.KindImage, func(ctx context.Context, emb *embedpool.Embedding) error {
		img, _ := emb.Image()
		vecs, err := img.Embed(ctx, req.Images, req.BatchSize)
		if err != nil {
			return err
		}
		resp = EmbedResponse{Model: string(img.Model()), Dimension: img.Dimension(), Embeddings: vecs}
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRerank(c echo.Context) error {
	var req RerankRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}
	if len(req.Documents) > maxInputs {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d documents per request", maxInputs))
	}

	var resp RerankResponse
	err := s.with(c, embedpool.KindRerank, func(ctx context.Context, emb *embedpool.Embedding) error {
		rr, _ := emb.Rerank()
		out, err := rr.Rerank(ctx, req.Query, req.Documents, req.TopK, req.ReturnDocuments)
		if err != nil {
			return err
		}
		resp = RerankResponse{Model: string(rr.Model()), Results: out}
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// with checks an instance out of the pool, runs fn and returns the instance.
// An instance whose backend reports ErrClosed, or whose fn panics, is
// discarded.
func (s *Server) with(c echo.Context, want embedpool.Kind, fn func(context.Context, *embedpool.Embedding) error) error {
	if got := s.model.Kind(); got != want {
		return echo.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("pool serves %s models, endpoint needs %s", got, want))
	}

	ctx := c.Request().Context()
	obj, err := s.pool.Get(ctx)
	if err != nil {
		return toHTTPError(err)
	}

	// A panicking fn leaves the instance in an unknown state; drop it.
	discard := true
	defer func() {
		if discard {
			obj.Discard()
			return
		}
		obj.Release()
	}()

	err = fn(ctx, obj.Embedding())
	discard = errors.Is(err, embeddings.ErrClosed)
	if discard {
		s.logger.Warn("discarding closed instance", logging.ContextFields(ctx)...)
	}
	if err != nil {
		s.logger.Debug("model call failed", append(logging.ContextFields(ctx), zap.Error(err))...)
		return toHTTPError(err)
	}
	return nil
}

func checkInputs(n int) error {
	switch {
	case n == 0:
		return echo.NewHTTPError(http.StatusBadRequest, "inputs field is required")
	case n > maxInputs:
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d inputs per request", maxInputs))
	}
	return nil
}

// toHTTPError maps pool and backend errors to status codes.
func toHTTPError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	var te *embedpool.TimeoutError
	switch {
	case errors.As(err, &te):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error()).SetInternal(err)
	case errors.Is(err, embedpool.ErrPoolClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "pool is closed").SetInternal(err)
	case errors.Is(err, context.Canceled):
		return echo.NewHTTPError(499, "request canceled").SetInternal(err)
	case errors.Is(err, embeddings.ErrEmptyInput),
		errors.Is(err, embeddings.ErrInvalidConfig):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	case errors.Is(err, embeddings.ErrONNXNotAvailable):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error()).SetInternal(err)
	case errors.Is(err, embeddings.ErrEmbeddingFailed):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error()).SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}
