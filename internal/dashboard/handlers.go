package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/luciancaetano/wadash/client"
)

type callFunc func(ctx context.Context) (json.RawMessage, error)

// forward answers with the result of a parameterless call.
func (s *Server) forward(call callFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := call(c.Request.Context())
		s.reply(c, raw, err)
	}
}

func (s *Server) reply(c *gin.Context, raw json.RawMessage, err error) {
	if err != nil {
		s.callFailed(c, err)
		return
	}
	ok(c, raw)
}

// pender is implemented by sessions that expose their in-flight calls.
type pender interface {
	Pending() int
}

func (s *Server) health(c *gin.Context) {
	session := s.client.Session()
	body := gin.H{
		"status":    "ok",
		"connected": session.Connected(),
		"state":     session.State().String(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}
	if p, ok := session.(pender); ok {
		body["pending"] = p.Pending()
	}
	c.JSON(http.StatusOK, body)
}

var (
	errNoRecipient   = errors.New("phone or group_id is required")
	errTwoRecipients = errors.New("phone and group_id are mutually exclusive")
	errNoType        = errors.New("type is required")
	errNoMessage     = errors.New("message is required for text messages")
)

func validateSend(req *client.SendRequest) error {
	switch {
	case req.Phone == "" && req.GroupID == "":
		return errNoRecipient
	case req.Phone != "" && req.GroupID != "":
		return errTwoRecipients
	}
	if req.Type == "" {
		if req.Message == "" {
			return errNoType
		}
		req.Type = "text"
	}
	if req.Type == "text" && req.Message == "" {
		return errNoMessage
	}
	return nil
}

func (s *Server) send(c *gin.Context) {
	var req client.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := validateSend(&req); err != nil {
		badRequest(c, err)
		return
	}

	if !s.limits.allowRecipient(req.Recipient()) {
		s.rateLimited(c, "recipient")
		return
	}
	if err := s.limits.wait(c.Request.Context()); err != nil {
		s.callFailed(c, err)
		return
	}

	raw, err := s.client.Send(c.Request.Context(), &req)
	s.reply(c, raw, err)
}

// media answers 404 when the backend cannot produce the media.
func (s *Server) media(c *gin.Context) {
	raw, err := s.client.Media(c.Request.Context(), c.Param("message_id"))
	if errors.Is(err, client.ErrRPC) {
		s.callFailedWith(c, http.StatusNotFound, err)
		return
	}
	s.reply(c, raw, err)
}

func (s *Server) groupInfo(c *gin.Context) {
	raw, err := s.client.GroupInfo(c.Request.Context(), c.Param("group_id"))
	s.reply(c, raw, err)
}

type groupUpdateBody struct {
	Name  *string `json:"name"`
	Topic *string `json:"topic"`
}

func (s *Server) groupUpdate(c *gin.Context) {
	var body groupUpdateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	if body.Name == nil && body.Topic == nil {
		fail(c, http.StatusBadRequest, "name or topic is required")
		return
	}
	raw, err := s.client.GroupUpdate(c.Request.Context(), c.Param("group_id"), body.Name, body.Topic)
	s.reply(c, raw, err)
}

type participantsBody struct {
	Participants []string `json:"participants" binding:"required,min=1"`
}

func (s *Server) participants(call func(context.Context, string, []string) (json.RawMessage, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body participantsBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
		raw, err := call(c.Request.Context(), c.Param("group_id"), body.Participants)
		s.reply(c, raw, err)
	}
}

func (s *Server) groupInvite(c *gin.Context) {
	raw, err := s.client.GroupInviteLink(c.Request.Context(), c.Param("group_id"))
	s.reply(c, raw, err)
}

func (s *Server) groupRevokeInvite(c *gin.Context) {
	raw, err := s.client.GroupRevokeInvite(c.Request.Context(), c.Param("group_id"))
	s.reply(c, raw, err)
}

func (s *Server) contacts(c *gin.Context) {
	raw, err := s.client.Contacts(c.Request.Context(), c.Query("query"))
	s.reply(c, raw, err)
}

type contactCheckBody struct {
	Phones []string `json:"phones" binding:"required,min=1"`
}

func (s *Server) contactCheck(c *gin.Context) {
	var body contactCheckBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	raw, err := s.client.ContactCheck(c.Request.Context(), body.Phones)
	s.reply(c, raw, err)
}

func (s *Server) contactPicture(c *gin.Context) {
	preview := false
	if v := c.Query("preview"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fail(c, http.StatusBadRequest, "preview must be a boolean")
			return
		}
		preview = b
	}
	raw, err := s.client.ContactProfilePic(c.Request.Context(), c.Param("jid"), preview)
	s.reply(c, raw, err)
}

func (s *Server) contactInfo(c *gin.Context) {
	raw, err := s.client.ContactInfo(c.Request.Context(), c.Param("phone"))
	s.reply(c, raw, err)
}

type chatHistoryQuery struct {
	ChatID      string `form:"chat_id"`
	Phone       string `form:"phone"`
	GroupID     string `form:"group_id"`
	Limit       int    `form:"limit" binding:"min=0"`
	Offset      int    `form:"offset" binding:"min=0"`
	SenderPhone string `form:"sender_phone"`
	TextOnly    bool   `form:"text_only"`
}

func (s *Server) chatHistory(c *gin.Context) {
	var q chatHistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if q.ChatID == "" && q.Phone == "" && q.GroupID == "" {
		fail(c, http.StatusBadRequest, "chat_id, phone or group_id is required")
		return
	}
	req := &client.ChatHistoryRequest{
		ChatID:      q.ChatID,
		Phone:       q.Phone,
		GroupID:     q.GroupID,
		Limit:       q.Limit,
		Offset:      q.Offset,
		SenderPhone: q.SenderPhone,
		TextOnly:    q.TextOnly,
	}
	raw, err := s.client.ChatHistory(c.Request.Context(), req)
	s.reply(c, raw, err)
}

type typingBody struct {
	JID   string `json:"jid" binding:"required"`
	State string `json:"state" binding:"omitempty,oneof=composing paused"`
	Media string `json:"media" binding:"omitempty,oneof=audio"`
}

func (s *Server) typing(c *gin.Context) {
	var body typingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	raw, err := s.client.Typing(c.Request.Context(), body.JID, body.State, body.Media)
	s.reply(c, raw, err)
}

type presenceBody struct {
	Status string `json:"status" binding:"required,oneof=available unavailable"`
}

func (s *Server) presence(c *gin.Context) {
	var body presenceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	raw, err := s.client.Presence(c.Request.Context(), body.Status)
	s.reply(c, raw, err)
}

type markReadBody struct {
	MessageIDs []string `json:"message_ids" binding:"required,min=1"`
	ChatJID    string   `json:"chat_jid" binding:"required"`
	SenderJID  string   `json:"sender_jid"`
}

func (s *Server) markRead(c *gin.Context) {
	var body markReadBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	raw, err := s.client.MarkRead(c.Request.Context(), body.MessageIDs, body.ChatJID, body.SenderJID)
	s.reply(c, raw, err)
}

func (s *Server) rateLimitSet(c *gin.Context) {
	var settings client.RateLimitSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		badRequest(c, err)
		return
	}
	raw, err := s.client.RateLimitSet(c.Request.Context(), &settings)
	s.reply(c, raw, err)
}
