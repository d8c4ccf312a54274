package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
)

// Service exposes buyer-facing order reads.
type Service interface {
	GetForBuyer(ctx context.Context, buyerID, orderID uuid.UUID) (*OrderDTO, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetForBuyer(ctx context.Context, buyerID, orderID uuid.UUID) (*OrderDTO, error) {
	if buyerID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer and order ids required")
	}
	order, err := s.repo.FindByIDForBuyer(ctx, orderID, buyerID)
	if err != nil {
		return nil, err
	}
	return NewOrderDTO(order), nil
}
