package checkout

import (
	"context"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/reference"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

// ListShippingOptionsUseCase lists the selectable shipping options with their carrier.
type ListShippingOptionsUseCase struct {
	reader reference.Reader
	inst   application.Instrument
}

func NewListShippingOptionsUseCase(reader reference.Reader, tel observability.Observability) *ListShippingOptionsUseCase {
	return &ListShippingOptionsUseCase{
		reader: reader,
		inst:   application.NewInstrument(tel, checkoutService, useCaseListShipping),
	}
}

func (uc *ListShippingOptionsUseCase) Execute(ctx context.Context, _ struct{}) (_ []reference.ShippingOption, err error) {
	ctx, run := uc.inst.Start(ctx, "ListShippingOptions")
	defer func() { run.End(err) }()
	return uc.reader.ShippingOptions(ctx)
}

type ListPaymentMethodsUseCase struct {
	reader reference.Reader
	inst   application.Instrument
}

func NewListPaymentMethodsUseCase(reader reference.Reader, tel observability.Observability) *ListPaymentMethodsUseCase {
	return &ListPaymentMethodsUseCase{
		reader: reader,
		inst:   application.NewInstrument(tel, checkoutService, useCaseListPayment),
	}
}

func (uc *ListPaymentMethodsUseCase) Execute(ctx context.Context, _ struct{}) (_ []reference.PaymentMethod, err error) {
	ctx, run := uc.inst.Start(ctx, "ListPaymentMethods")
	defer func() { run.End(err) }()
	return uc.reader.PaymentMethods(ctx)
}
