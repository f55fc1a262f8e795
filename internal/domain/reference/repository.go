package reference

import "context"

// Repository resolves references by id. Missing ids yield the ErrUnknown* errors.
type Repository interface {
	ShippingOption(ctx context.Context, id string) (*ShippingOption, error)
	PaymentMethod(ctx context.Context, id string) (*PaymentMethod, error)
	Address(ctx context.Context, id string) (*Address, error)
}

// Reader lists the selectable references.
type Reader interface {
	ShippingOptions(ctx context.Context) ([]ShippingOption, error)
	PaymentMethods(ctx context.Context) ([]PaymentMethod, error)
}
