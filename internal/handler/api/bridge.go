package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"SaxoBridge/internal/domain/models"
	"SaxoBridge/internal/service/saxo"
	"SaxoBridge/internal/usecase"
	xhttp "SaxoBridge/pkg/http"
	xlogger "SaxoBridge/pkg/logger"
	"SaxoBridge/pkg/util"
)

var lineEnd = []byte("\r\n")

// Listener is one attached quote stream.
type Listener interface {
	Lines() <-chan []byte
	Close()
}

// Sessions opens and closes quote streams.
type Sessions interface {
	Open(ctx context.Context, user string, instruments []models.Instrument) (Listener, error)
	Close(ctx context.Context, user string, instruments []models.Instrument) (usecase.CloseResult, error)
}

// Backfill walks history for one instrument.
type Backfill interface {
	Walk(ctx context.Context, user string, q usecase.HistoryQuery, yield func(models.BarBatch) error) error
}

// InstrumentSearch runs upstream keyword searches.
type InstrumentSearch interface {
	SearchInstruments(ctx context.Context, token, keywords, assetTypes string) ([]saxo.InstrumentData, error)
}

type managerSessions struct{ m *usecase.SessionManager }

// NewSessions exposes a SessionManager to the handlers.
func NewSessions(m *usecase.SessionManager) Sessions { return managerSessions{m: m} }

func (s managerSessions) Open(ctx context.Context, user string, instruments []models.Instrument) (Listener, error) {
	st, err := s.m.OpenStream(ctx, user, instruments)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s managerSessions) Close(ctx context.Context, user string, instruments []models.Instrument) (usecase.CloseResult, error) {
	return s.m.CloseStream(ctx, user, instruments)
}

// BridgeHandler serves the charting client API.
type BridgeHandler struct {
	auth     Authenticator
	sessions Sessions
	history  Backfill
	search   InstrumentSearch
	logger   *xlogger.Logger
}

func NewBridgeHandler(auth Authenticator, sessions Sessions, history Backfill, search InstrumentSearch, logger *xlogger.Logger) *BridgeHandler {
	return &BridgeHandler{auth: auth, sessions: sessions, history: history, search: search, logger: logger}
}

func (h *BridgeHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/acb", h.Callback)
	g.POST("/login", h.Login, RequireUser())
	g.GET("/authorize", h.Authorize, RequireUser())

	authed := g.Group("", RequireUser(), RequireToken(h.auth))
	authed.GET("/quotes", h.OpenQuotes)
	authed.DELETE("/quotes", h.CloseQuotes)
	authed.GET("/lookup", h.Lookup)
	authed.GET("/lookup/options", h.LookupOptions)
	authed.GET("/history", h.History)
	authed.GET("/instruments", h.Instruments)
}

// Callback completes the OAuth authorization code grant.
func (h *BridgeHandler) Callback(c echo.Context) error {
	req := &models.CallbackRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if _, err := h.auth.ExchangeCode(c.Request().Context(), req.State, req.Code); err != nil {
		h.logger.Warn("authorization callback failed", xlogger.Error(err))
		return c.String(http.StatusOK, "Authorization failed")
	}
	return c.String(http.StatusOK, "Authorization successfully granted")
}

// Login reports whether the user holds a usable record. It never
// refreshes tokens.
func (h *BridgeHandler) Login(c echo.Context) error {
	user := userOf(c)
	ok, err := h.auth.Status(c.Request().Context(), user)
	if err != nil {
		return errorResponse(c, err)
	}
	if !ok {
		return c.JSON(http.StatusOK, map[string]interface{}{"status": 1, "auth_url": h.auth.AuthorizeURL(user)})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": 1, "auth_url": "authorized"})
}

func (h *BridgeHandler) Authorize(c echo.Context) error {
	ok, err := h.auth.HasRecord(c.Request().Context(), userOf(c))
	if err != nil {
		return errorResponse(c, err)
	}
	if !ok {
		return c.JSON(http.StatusOK, map[string]interface{}{"status": 0})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": 1, "auth_url": "authorized"})
}

// OpenQuotes attaches to the user's quote stream and writes one record
// per line until the client goes away or the stream ends.
func (h *BridgeHandler) OpenQuotes(c echo.Context) error {
	req := &models.StreamRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	instruments, err := parseInstruments(req)
	if err != nil {
		return errorResponse(c, err)
	}

	ctx := c.Request().Context()
	st, err := h.sessions.Open(ctx, userOf(c), instruments)
	if err != nil {
		h.logger.Warn("open stream failed", xlogger.String("user", userOf(c)), xlogger.Error(err))
		return failure(c, err)
	}
	defer st.Close()

	nl := req.NewLine == "1"
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	res.WriteHeader(http.StatusOK)
	res.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-st.Lines():
			if !ok {
				return nil
			}
			if _, err := res.Write(line); err != nil {
				return nil
			}
			if nl {
				_, _ = res.Write(lineEnd)
			}
			res.Flush()
		}
	}
}

func (h *BridgeHandler) CloseQuotes(c echo.Context) error {
	req := &models.StreamRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	instruments, err := parseInstruments(req)
	if err != nil {
		return errorResponse(c, err)
	}
	result, err := h.sessions.Close(c.Request().Context(), userOf(c), instruments)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": result.Message(),
		"removed": result.Removed(),
	})
}

// Lookup answers the symbol search dialog. Upstream failures yield an
// empty list.
func (h *BridgeHandler) Lookup(c echo.Context) error {
	req := &models.LookupRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	datasets := []models.InstrumentSummary{}
	hits, err := h.search.SearchInstruments(c.Request().Context(), tokenOf(c), req.Query, req.Type)
	if err != nil {
		h.logger.Warn("instrument search failed", xlogger.String("q", req.Query), xlogger.Error(err))
	}
	for _, hit := range hits {
		datasets = append(datasets, hit.Summary())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": 1, "datasets": datasets})
}

func (h *BridgeHandler) LookupOptions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": 1,
		"options": map[string]interface{}{
			"searchbys": []string{"Search by code & name"},
			"types":     saxo.AssetTypes,
		},
	})
}

func (h *BridgeHandler) Instruments(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"status": 1, "instruments": []models.Instrument{}})
}

// History streams bar batches, each terminated by CRLF, newest window first.
func (h *BridgeHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Symbol == "" && req.Code == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("symbol or code is required"))
	}
	start, err := util.ParseDate(req.Start)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("start: %v", err))
	}
	end, err := util.ParseDate(req.End)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("end: %v", err))
	}

	q := usecase.HistoryQuery{
		Symbol: req.Symbol,
		Code:   req.Code,
		Type:   req.Type,
		Period: req.Period,
		Start:  start,
		End:    end,
	}
	res := c.Response()
	err = h.history.Walk(c.Request().Context(), userOf(c), q, func(b models.BarBatch) error {
		line, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encode batch: %w", err)
		}
		if !res.Committed {
			res.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			res.WriteHeader(http.StatusOK)
		}
		if _, err := res.Write(append(line, lineEnd...)); err != nil {
			return err
		}
		res.Flush()
		return nil
	})
	if err == nil {
		return nil
	}
	if res.Committed {
		h.logger.Warn("history stream aborted", xlogger.String("symbol", q.Symbol), xlogger.Error(err))
		return nil
	}
	return failure(c, err)
}

// parseInstruments reads either the base64 JSON instrument list or the
// single symbol/code/type triple.
func parseInstruments(req *models.StreamRequest) ([]models.Instrument, error) {
	if req.Instruments != "" {
		raw, err := decodeBase64(req.Instruments)
		if err != nil {
			return nil, fmt.Errorf("%w: instruments: %v", models.ErrInvalidRequest, err)
		}
		var out []models.Instrument
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("%w: instruments: %v", models.ErrInvalidRequest, err)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: empty instrument list", models.ErrInvalidRequest)
		}
		return out, nil
	}
	if req.Symbol == "" && req.Code == "" {
		return nil, fmt.Errorf("%w: instruments, symbol or code is required", models.ErrInvalidRequest)
	}
	return []models.Instrument{{Symbol: req.Symbol, Code: req.Code, Type: req.Type}}, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
