package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kumarabd/console-brief/pkg/pagecontext"
	"github.com/kumarabd/console-brief/pkg/report"
	"github.com/kumarabd/console-brief/pkg/service"
	"github.com/kumarabd/console-brief/pkg/settings"
)

type createSessionRequest struct {
	PageURL string `json:"pageUrl"`
}

type sessionResponse struct {
	OK        bool      `json:"ok"`
	ID        string    `json:"sessionId"`
	PageURL   string    `json:"pageUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *HTTP) createSessionHandler(c *gin.Context) {
	var req createSessionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		s.badRequest(c, "bad_json", err)
		return
	}
	sess := s.service.CreateSession(req.PageURL)
	c.JSON(http.StatusCreated, sessionResponse{
		OK:        true,
		ID:        sess.ID,
		PageURL:   sess.PageURL(),
		CreatedAt: sess.CreatedAt,
	})
}

func (s *HTTP) deleteSessionHandler(c *gin.Context) {
	if err := s.service.DeleteSession(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// reportHandler reads options from the query string on GET and from the body on POST.
func (s *HTTP) reportHandler(c *gin.Context, _ time.Time) {
	var req report.Request
	if c.Request.Method == http.MethodGet {
		req = report.ParseQuery(c.Request.URL.Query())
	} else if err := bindOptionalJSON(c, &req); err != nil {
		s.badRequest(c, "bad_report_request", err)
		return
	}

	rep, err := s.service.Report(c.Request.Context(), c.Param("id"), req.Options())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, struct {
		OK bool `json:"ok"`
		*report.Report
	}{true, rep})
}

func (s *HTTP) contextHandler(c *gin.Context, _ time.Time) {
	var req pagecontext.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "bad_context_request", err)
		return
	}

	result, err := s.service.PageContext(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, struct {
		OK bool `json:"ok"`
		*pagecontext.Result
	}{true, result})
}

func (s *HTTP) briefHandler(c *gin.Context, _ time.Time) {
	var req service.BriefRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		s.badRequest(c, "bad_brief_request", err)
		return
	}

	result, err := s.service.Brief(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, struct {
		OK bool `json:"ok"`
		*service.BriefResult
	}{true, result})
}

func (s *HTTP) condenseHandler(c *gin.Context, _ time.Time) {
	var req service.CondenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "bad_condense_request", err)
		return
	}

	result, err := s.service.Condense(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, struct {
		OK bool `json:"ok"`
		*service.CondenseResult
	}{true, result})
}

func (s *HTTP) getSettingsHandler(c *gin.Context) {
	view, err := s.service.Settings(c.Request.Context())
	s.settingsResponse(c, view, err)
}

func (s *HTTP) putSettingsHandler(c *gin.Context) {
	var u settings.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		s.badRequest(c, "bad_settings_request", err)
		return
	}
	view, err := s.service.SaveSettings(c.Request.Context(), u)
	s.settingsResponse(c, view, err)
}

func (s *HTTP) clearKeyHandler(c *gin.Context) {
	view, err := s.service.ClearKey(c.Request.Context())
	s.settingsResponse(c, view, err)
}

func (s *HTTP) settingsResponse(c *gin.Context, view settings.View, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, struct {
		OK bool `json:"ok"`
		settings.View
	}{true, view})
}

// bindOptionalJSON decodes the body when there is one. An empty body keeps
// the zero value.
func bindOptionalJSON(c *gin.Context, obj any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
