package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/freya/internal/events"
	"github.com/smallbiznis/freya/pkg/db/pagination"
)

// ListEvents pages through the persisted event feed, oldest first.
func (s *Server) ListEvents(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var after uint64
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		after, err = strconv.ParseUint(cursor.ID, 10, 64)
		if err != nil {
			AbortWithError(c, pagination.ErrInvalidPageToken)
			return
		}
	}

	limit := page.Limit()
	items, err := s.store.ListEvents(c.Request.Context(), after, limit+1)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, info, err := pagination.BuildCursorPageInfo(items, limit, func(ev events.Event) string {
		return strconv.FormatUint(ev.Seq, 10)
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := make([]eventResponse, 0, len(items))
	for _, ev := range items {
		data = append(data, newEventResponse(ev))
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "page_info": info})
}

type eventResponse struct {
	ID         string         `json:"id"`
	Seq        uint64         `json:"seq"`
	Type       string         `json:"type"`
	InvoiceID  uint64         `json:"invoice_id"`
	Payload    map[string]any `json:"payload"`
	OccurredAt int64          `json:"occurred_at"`
}

func newEventResponse(ev events.Event) eventResponse {
	return eventResponse{
		ID:         ev.ID.String(),
		Seq:        ev.Seq,
		Type:       string(ev.Type),
		InvoiceID:  ev.InvoiceID,
		Payload:    ev.Payload,
		OccurredAt: unixOrZero(ev.OccurredAt.Unix()),
	}
}

// StreamEvents relays committed events as server-sent events until the client disconnects.
func (s *Server) StreamEvents(c *gin.Context) {
	ch, cancel := s.hub.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.Render(-1, sse.Event{
				Id:    strconv.FormatUint(ev.Seq, 10),
				Event: string(ev.Type),
				Data:  newEventResponse(ev),
			})
			return true
		}
	})
}
