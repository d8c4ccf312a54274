package models

// All lists every model owned by this service, in dependency order. Used by
// sqlite auto-migration in dev and tests; Postgres uses the goose migrations.
func All() []any {
	return []any{
		&User{},
		&Listing{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&PaymentTransaction{},
		&PaymentCustomer{},
		&PaymentRefund{},
		&OutboxEvent{},
		&OutboxDLQ{},
		&Notification{},
	}
}
