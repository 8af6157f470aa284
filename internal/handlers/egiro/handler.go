package egiro

import (
	"net/http"

	"egiro-gateway/internal/middleware"
	egirosvc "egiro-gateway/internal/services/egiro"
	"egiro-gateway/internal/services/interpreter"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-Id"

type AuthorizeCreationQuery struct {
	ClientSlug        string `form:"client_slug" binding:"required"`
	RequestType       string `form:"requestType"`
	Segment           string `form:"segment"`
	Purpose           string `form:"purpose"`
	BoDDARefNo        string `form:"boDDARefNo"`
	BoName            string `form:"boName"`
	ApplicantBankCode string `form:"applicantBankCode"`
	// Follow answers with the counterparty redirect instead of JSON.
	Follow bool `form:"follow"`
}

type ConnectivityTestQuery struct {
	ClientSlug string `form:"client_slug" binding:"required"`
}

type EddaStatusQuery struct {
	ClientSlug         string `form:"client_slug" binding:"required"`
	BoTransactionRefNo string `form:"boTransactionRefNo" binding:"required,len=35"`
}

// Handler serves the eGIRO endpoints.
type Handler struct {
	engine Engine
	logger *zap.Logger
}

func NewHandler(engine Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/authorize-creation", h.HandleAuthorizeCreation)
	r.GET("/connectivity-test", h.HandleConnectivityTest)
	r.GET("/edda/status", h.HandleEddaStatus)
}

// HandleAuthorizeCreation handles GET /authorize-creation
func (h *Handler) HandleAuthorizeCreation(c *gin.Context) {
	var query AuthorizeCreationQuery
	if !bindQuery(c, &query) {
		return
	}

	report, err := h.engine.AuthorizeCreation(c.Request.Context(), query.ClientSlug, egirosvc.AuthorizeOverrides{
		RequestType:       query.RequestType,
		Segment:           query.Segment,
		Purpose:           query.Purpose,
		BoDDARefNo:        query.BoDDARefNo,
		BoName:            query.BoName,
		ApplicantBankCode: query.ApplicantBankCode,
	})
	if err == nil && query.Follow && report.Result.Kind == interpreter.KindRedirect {
		c.Header(requestIDHeader, report.RequestID)
		c.Redirect(http.StatusFound, report.Result.Location)
		return
	}
	h.respond(c, report, err, "Authorization request processed successfully")
}

// HandleConnectivityTest handles GET /connectivity-test
func (h *Handler) HandleConnectivityTest(c *gin.Context) {
	var query ConnectivityTestQuery
	if !bindQuery(c, &query) {
		return
	}

	report, err := h.engine.ConnectivityTest(c.Request.Context(), query.ClientSlug)
	h.respond(c, report, err, "Connectivity test succeeded")
}

// HandleEddaStatus handles GET /edda/status
func (h *Handler) HandleEddaStatus(c *gin.Context) {
	var query EddaStatusQuery
	if !bindQuery(c, &query) {
		return
	}

	report, err := h.engine.EddaStatus(c.Request.Context(), query.ClientSlug, query.BoTransactionRefNo)
	h.respond(c, report, err, "eDDA status retrieved successfully")
}

// respond writes the envelope. The engine records pre-flight errors in the
// report; err only matters when no report came back at all.
func (h *Handler) respond(c *gin.Context, report *egirosvc.Report, err error, successMessage string) {
	if report == nil {
		report = &egirosvc.Report{Result: interpreter.FromError(err)}
	}
	if report.RequestID != "" {
		c.Header(requestIDHeader, report.RequestID)
	}
	status, resp := buildResponse(report, successMessage, c.GetString(middleware.TraceIDContextKey))
	if !resp.Success {
		h.logger.Info("egiro request unsuccessful",
			zap.String("flow", report.Flow),
			zap.Int("status_code", status),
			zap.String("error_code", report.Result.Code),
		)
	}
	c.JSON(status, resp)
}
