package http

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"github.com/sakashimaa/bookshop/pkg/utils"
	"github.com/sakashimaa/bookshop/services/catalog/internal/domain"
	"github.com/sakashimaa/bookshop/services/catalog/internal/repository"
	"github.com/sakashimaa/bookshop/services/catalog/internal/service"
	"go.uber.org/zap"
)

var bookMessages = utils.FieldMessages{
	"isbn.required":    "The book ISBN must be defined.",
	"isbn.isbn_digits": "The ISBN format must be valid.",
	"title.required":   "The book title must be defined.",
	"author.required":  "The book author must be defined.",
	"price.required":   "The book price must be defined.",
	"price.gt":         "The book price must be greater than zero.",
}

type BookHandler struct {
	service  service.BookService
	logger   *zap.Logger
	validate *validator.Validate
}

func NewBookHandler(service service.BookService, logger *zap.Logger) *BookHandler {
	return &BookHandler{
		service:  service,
		logger:   logger,
		validate: domain.NewValidator(),
	}
}

func (h *BookHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()

	books, err := h.service.List(ctx)
	if err != nil {
		return h.internalError(c, "List books failed", err)
	}

	return c.JSON(books)
}

func (h *BookHandler) Get(c *fiber.Ctx) error {
	ctx := c.UserContext()
	isbn := c.Params("isbn")

	book, err := h.service.FindByIsbn(ctx, isbn)
	if err != nil {
		return h.writeError(c, isbn, err)
	}

	return c.JSON(book)
}

func (h *BookHandler) Create(c *fiber.Ctx) error {
	ctx := c.UserContext()

	book, ok, err := h.parseBook(c, "")
	if !ok {
		return err
	}

	created, err := h.service.Add(ctx, book)
	if err != nil {
		return h.writeError(c, book.Isbn, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *BookHandler) Update(c *fiber.Ctx) error {
	ctx := c.UserContext()
	isbn := c.Params("isbn")

	book, ok, err := h.parseBook(c, isbn)
	if !ok {
		return err
	}

	edited, err := h.service.Edit(ctx, isbn, book)
	if err != nil {
		return h.writeError(c, isbn, err)
	}

	return c.JSON(edited)
}

func (h *BookHandler) Delete(c *fiber.Ctx) error {
	ctx := c.UserContext()
	isbn := c.Params("isbn")

	if err := h.service.Remove(ctx, isbn); err != nil {
		return h.writeError(c, isbn, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// parseBook decodes and validates the body. When ok is false the response
// has already been written and err is what the handler should return.
func (h *BookHandler) parseBook(c *fiber.Ctx, pathIsbn string) (*domain.Book, bool, error) {
	var book domain.Book
	if err := c.BodyParser(&book); err != nil {
		mylogger.Warn(
			c.UserContext(),
			h.logger,
			"Failed to parse book body",
			zap.Error(err),
		)

		return nil, false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if pathIsbn != "" {
		book.Isbn = pathIsbn
	}

	if err := h.validate.Struct(&book); err != nil {
		return nil, false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err, bookMessages),
		})
	}

	return &book, true, nil
}

func (h *BookHandler) writeError(c *fiber.Ctx, isbn string, err error) error {
	switch {
	case errors.Is(err, repository.ErrBookNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": fmt.Sprintf("The book with ISBN %s was not found.", isbn),
		})
	case errors.Is(err, repository.ErrBookAlreadyExists):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": fmt.Sprintf("A book with ISBN %s already exists.", isbn),
		})
	case errors.Is(err, repository.ErrVersionConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": fmt.Sprintf("The book with ISBN %s was modified concurrently. Try again.", isbn),
		})
	case errors.Is(err, service.ErrInvalidBook):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err, bookMessages),
		})
	default:
		return h.internalError(c, "Book request failed", err)
	}
}

func (h *BookHandler) internalError(c *fiber.Ctx, msg string, err error) error {
	mylogger.Error(
		c.UserContext(),
		h.logger,
		msg,
		zap.Error(err),
	)

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
