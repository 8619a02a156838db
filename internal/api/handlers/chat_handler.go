package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"finman/internal/dialog"
	"finman/internal/dto"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const maxUploadSize = 10 << 20

type ChatEngine interface {
	Handle(ctx context.Context, in dialog.Inbound) dialog.Reply
}

type ChatHandler struct {
	engine ChatEngine
	logger *zap.Logger
}

func NewChatHandler(engine ChatEngine, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		engine: engine,
		logger: logger,
	}
}

// PostMessage godoc
// @Summary Send a chat message
// @Description Send a text message or a receipt photo to the expense assistant and get its reply
// @Tags chat
// @Accept json,mpfd
// @Produce json
// @Param request body dto.ChatMessageRequest false "Text message"
// @Param file formData file false "Receipt photo or PDF"
// @Param text formData string false "Caption"
// @Param message_id formData string false "Client message id for retries"
// @Security Bearer
// @Success 200 {object} dto.ChatMessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/chat/messages [post]
func (h *ChatHandler) PostMessage(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	in := dialog.Inbound{UserID: userID}
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		content, status, msg := readUpload(c)
		if status != 0 {
			return respondError(c, status, msg)
		}
		in.ID = c.FormValue("message_id")
		in.Content = content
	} else {
		var req dto.ChatMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, fiber.StatusBadRequest, "Invalid request body")
		}
		in.ID = req.MessageID
		in.Content = dialog.Content{Text: req.Text}
	}

	if strings.TrimSpace(in.Content.Text) == "" && !in.Content.IsImage() {
		return respondError(c, fiber.StatusBadRequest, "Message text or file is required")
	}

	reply := h.engine.Handle(c.Context(), in)
	if reply.Err != nil {
		h.logger.Debug("Turn finished with error",
			zap.String("user_id", userID),
			zap.String("state", reply.State.String()),
			zap.Error(reply.Err),
		)
	}

	resp := dto.ChatMessageResponse{
		Replies: []string{},
		State:   reply.State.String(),
	}
	if reply.Text != "" {
		resp.Replies = append(resp.Replies, reply.Text)
	}
	if reply.Expense != nil {
		expense := dto.NewExpenseResponse(reply.Expense)
		resp.Expense = &expense
	}
	return c.JSON(resp)
}

// readUpload returns the uploaded file as image content, or a non-zero
// status with an error message.
func readUpload(c *fiber.Ctx) (dialog.Content, int, string) {
	file, err := c.FormFile("file")
	if err != nil {
		// caption-only form
		return dialog.Content{Text: c.FormValue("text")}, 0, ""
	}
	if file.Size > maxUploadSize {
		return dialog.Content{}, fiber.StatusRequestEntityTooLarge, "File is too large"
	}

	src, err := file.Open()
	if err != nil {
		return dialog.Content{}, fiber.StatusBadRequest, "Failed to open file"
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadSize))
	if err != nil {
		return dialog.Content{}, fiber.StatusBadRequest, "Failed to read file"
	}

	mimeType := http.DetectContentType(data)
	if mimeType != "application/pdf" && !strings.HasPrefix(mimeType, "image/") {
		return dialog.Content{}, fiber.StatusUnsupportedMediaType, "Only images and PDF files are supported"
	}

	return dialog.Content{Text: c.FormValue("text"), Image: data, MIME: mimeType}, 0, ""
}
