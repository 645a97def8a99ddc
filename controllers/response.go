package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/middleware"
	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/services"
)

func respond(ctx echo.Context, status int, message string, data interface{}) error {
	return ctx.JSON(status, models.Response{
		Status:  status,
		Message: message,
		Data:    data,
	})
}

func respondPage(ctx echo.Context, message string, items interface{}, page models.Pagination, total int64) error {
	return respond(ctx, http.StatusOK, message, models.Page{
		Items:      items,
		Pagination: page.Meta(total),
	})
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, services.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err as a JSON response. Unexpected errors are logged
// and hidden from the client.
func respondError(ctx echo.Context, logger *zap.Logger, err error) error {
	status := statusFor(err)
	var svcErr *services.Error
	if status == http.StatusInternalServerError || !errors.As(err, &svcErr) {
		logger.Error("request failed",
			zap.String("method", ctx.Request().Method),
			zap.String("path", ctx.Path()),
			zap.Error(err))
		return respond(ctx, http.StatusInternalServerError, "Internal server error", nil)
	}
	return respond(ctx, status, svcErr.Message, nil)
}

// errResponded marks that a helper has already written the response.
var errResponded = errors.New("response already written")

// bind decodes the body into req and runs its validate tags.
func bind(ctx echo.Context, req interface{}) error {
	if err := ctx.Bind(req); err != nil {
		respond(ctx, http.StatusBadRequest, "Invalid request body", nil)
		return errResponded
	}
	if err := ctx.Validate(req); err != nil {
		var verrs validator.ValidationErrors
		var fields map[string]string
		if errors.As(err, &verrs) {
			fields = make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		respond(ctx, http.StatusBadRequest, "Validation failed", fields)
		return errResponded
	}
	return nil
}

func objectIDParam(ctx echo.Context, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(ctx.Param(name))
	if err != nil {
		respond(ctx, http.StatusBadRequest, "Invalid "+name, nil)
		return primitive.NilObjectID, errResponded
	}
	return id, nil
}

func optionalObjectIDQuery(ctx echo.Context, name string) (*primitive.ObjectID, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		respond(ctx, http.StatusBadRequest, "Invalid "+name, nil)
		return nil, errResponded
	}
	return &id, nil
}

func optionalDateQuery(ctx echo.Context, name string) (*time.Time, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		respond(ctx, http.StatusBadRequest, "Invalid "+name+", expected YYYY-MM-DD", nil)
		return nil, errResponded
	}
	return &t, nil
}

func optionalMoneyQuery(ctx echo.Context, name string) (*models.Money, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	m, err := models.ParseMoney(raw)
	if err != nil {
		respond(ctx, http.StatusBadRequest, "Invalid "+name, nil)
		return nil, errResponded
	}
	return &m, nil
}

func pageFromQuery(ctx echo.Context) models.Pagination {
	return models.NewPagination(ctx.QueryParam("page"), ctx.QueryParam("limit"))
}

func currentUserID(ctx echo.Context) (primitive.ObjectID, error) {
	id, err := middleware.ExtractUserID(ctx)
	if err != nil {
		respond(ctx, http.StatusUnauthorized, "Unauthorized", nil)
		return primitive.NilObjectID, errResponded
	}
	return id, nil
}

// done turns the sentinel back into a nil handler error.
func done(err error) error {
	if errors.Is(err, errResponded) {
		return nil
	}
	return err
}
