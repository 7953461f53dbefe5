package metadata

import "commerce-backend/internal/ability"

func pk() PrimaryKey {
	return PrimaryKey{Field: "id", Type: "bigint", Generated: true}
}

func idField() Field {
	return Field{Name: "id", Type: "bigint"}
}

func timestamps() []Field {
	return []Field{
		{Name: "created_at", Type: "timestamp", Auto: "create"},
		{Name: "updated_at", Type: "timestamp", Auto: "update"},
	}
}

func fields(fs ...Field) []Field {
	out := append([]Field{idField()}, fs...)
	return append(out, timestamps()...)
}

// Schema returns every entity of the store in dependency order.
func Schema() []*Entity {
	return []*Entity{
		{
			Name: "user", Table: "users", PrimaryKey: pk(), Subject: ability.User,
			Fields: fields(
				Field{Name: "email", Type: "string", Required: true, Unique: true},
				Field{Name: "password", Type: "string", Required: true, Hidden: true},
				Field{Name: "role", Type: "string", Required: true, Enum: []string{"CUSTOMER", "ADMIN", "SUPERADMIN"}},
				Field{Name: "first_name", Type: "string", Required: true},
				Field{Name: "last_name", Type: "string", Required: true},
				Field{Name: "phone_number", Type: "string", Nullable: true},
				Field{Name: "gender", Type: "string", Nullable: true, Enum: []string{"MALE", "FEMALE", "OTHER"}},
				Field{Name: "birth_date", Type: "date", Nullable: true},
				Field{Name: "hashed_rt", Type: "string", Nullable: true, Hidden: true},
			),
		},
		{
			Name: "customer", Table: "customers", PrimaryKey: pk(),
			Fields: fields(
				Field{Name: "user_id", Type: "bigint", Required: true, Unique: true, References: ref("users", "CASCADE")},
				Field{Name: "payment_customer_id", Type: "string", Nullable: true},
			),
		},
		{
			Name: "country", Table: "countries", PrimaryKey: pk(), Subject: ability.Country, Route: "countries",
			Fields: fields(
				Field{Name: "name", Type: "string", Required: true, Unique: true},
				Field{Name: "code", Type: "string", Required: true, Unique: true},
			),
			Rules: []*Rule{
				fieldRule("name", "max_length", 50, "name must be at most 50 characters"),
				fieldRule("code", "max_length", 3, "code must be at most 3 characters"),
				fieldRule("code", "min_length", 2, "code must be at least 2 characters"),
				computedRule("code", `upper(record.code)`),
			},
		},
		{
			Name: "region", Table: "regions", PrimaryKey: pk(), Subject: ability.Region, Route: "regions",
			Parent: &ParentRef{Entity: "country", Field: "country_id"},
			Fields: fields(
				Field{Name: "country_id", Type: "bigint", Required: true, References: ref("countries", "CASCADE")},
				Field{Name: "name", Type: "string", Required: true},
			),
			UniqueTogether: [][]string{{"country_id", "name"}},
			Rules: []*Rule{
				fieldRule("name", "max_length", 50, "name must be at most 50 characters"),
			},
		},
		{
			Name: "city", Table: "cities", PrimaryKey: pk(), Subject: ability.City, Route: "cities",
			Parent: &ParentRef{Entity: "region", Field: "region_id"},
			Fields: fields(
				Field{Name: "region_id", Type: "bigint", Required: true, References: ref("regions", "CASCADE")},
				Field{Name: "name", Type: "string", Required: true},
			),
			UniqueTogether: [][]string{{"region_id", "name"}},
			Rules: []*Rule{
				fieldRule("name", "max_length", 50, "name must be at most 50 characters"),
			},
		},
		{
			Name: "address", Table: "addresses", PrimaryKey: pk(), Subject: ability.Address,
			Fields: fields(
				Field{Name: "customer_id", Type: "bigint", Required: true, References: ref("customers", "CASCADE")},
				Field{Name: "city_id", Type: "bigint", Required: true, References: ref("cities", "")},
				Field{Name: "address1", Type: "string", Required: true},
				Field{Name: "address2", Type: "string", Nullable: true},
				Field{Name: "is_default", Type: "boolean", Default: false},
			),
		},
		{
			Name: "brand", Table: "brands", PrimaryKey: pk(), Subject: ability.Brand, Route: "brands",
			Fields: fields(
				Field{Name: "name", Type: "string", Required: true, Unique: true},
			),
			Rules: []*Rule{
				fieldRule("name", "max_length", 20, "name must be at most 20 characters"),
			},
		},
		{
			Name: "category", Table: "categories", PrimaryKey: pk(), Subject: ability.Category, Route: "categories",
			Fields: fields(
				Field{Name: "name", Type: "string", Required: true, Unique: true},
				Field{Name: "parent_id", Type: "bigint", Nullable: true, References: ref("categories", "SET NULL")},
			),
			Rules: []*Rule{
				fieldRule("name", "max_length", 20, "name must be at most 20 characters"),
				expressionRule(`action == "update" && record.parent_id != nil && record.parent_id == old.id`,
					"a category cannot be its own parent"),
			},
		},
		{
			Name: "product", Table: "products", PrimaryKey: pk(), Subject: ability.Product, Route: "products",
			Fields: fields(
				Field{Name: "gtin", Type: "string", Required: true, Unique: true},
				Field{Name: "name", Type: "string", Required: true},
				Field{Name: "description", Type: "text", Nullable: true},
				Field{Name: "category_id", Type: "bigint", Required: true, References: ref("categories", "")},
				Field{Name: "brand_id", Type: "bigint", Required: true, References: ref("brands", "")},
			),
			Rules: []*Rule{
				fieldRule("gtin", "pattern", `^[0-9]{8,14}$`, "gtin must be 8 to 14 digits"),
				fieldRule("name", "max_length", 100, "name must be at most 100 characters"),
			},
		},
		{
			Name: "product_variant", Table: "product_variants", PrimaryKey: pk(), Subject: ability.ProductVariant, Route: "variants",
			Parent: &ParentRef{Entity: "product", Field: "product_id"},
			Fields: fields(
				Field{Name: "product_id", Type: "bigint", Required: true, References: ref("products", "CASCADE")},
				Field{Name: "name", Type: "string", Required: true},
				Field{Name: "sku", Type: "string", Required: true, Unique: true},
				Field{Name: "price", Type: "float", Required: true},
				Field{Name: "image", Type: "string", Nullable: true},
			),
			Rules: []*Rule{
				fieldRule("price", "min", 0, "price must not be negative"),
				computedRule("sku", `upper(trim(record.sku))`),
			},
		},
		{
			Name: "voucher", Table: "vouchers", PrimaryKey: pk(), Subject: ability.Voucher, Route: "vouchers",
			Fields: fields(
				Field{Name: "code", Type: "string", Required: true, Unique: true},
				Field{Name: "percentage_discount", Type: "int", Required: true},
				Field{Name: "upper_limit", Type: "float", Required: true},
			),
			Rules: []*Rule{
				fieldRule("percentage_discount", "min", 1, "percentage_discount must be between 1 and 100"),
				fieldRule("percentage_discount", "max", 100, "percentage_discount must be between 1 and 100"),
				fieldRule("upper_limit", "min", 0, "upper_limit must not be negative"),
				computedRule("code", `upper(record.code)`),
			},
		},
		{
			Name: "cart_item", Table: "cart_items", PrimaryKey: pk(), Subject: ability.ProductCustomer,
			Fields: fields(
				Field{Name: "customer_id", Type: "bigint", Required: true, References: ref("customers", "CASCADE")},
				Field{Name: "product_variant_id", Type: "bigint", Required: true, References: ref("product_variants", "CASCADE")},
				Field{Name: "quantity", Type: "int", Required: true},
			),
			UniqueTogether: [][]string{{"customer_id", "product_variant_id"}},
		},
		{
			Name: "wishlist", Table: "wishlists", PrimaryKey: pk(), Subject: ability.Wishlist,
			Fields: fields(
				Field{Name: "customer_id", Type: "bigint", Required: true, References: ref("customers", "CASCADE")},
				Field{Name: "title", Type: "string", Required: true},
				Field{Name: "is_private", Type: "boolean", Default: false},
			),
		},
		{
			Name: "wishlist_item", Table: "wishlist_items", PrimaryKey: pk(),
			Fields: fields(
				Field{Name: "wishlist_id", Type: "bigint", Required: true, References: ref("wishlists", "CASCADE")},
				Field{Name: "product_id", Type: "bigint", Required: true, References: ref("products", "CASCADE")},
			),
			UniqueTogether: [][]string{{"wishlist_id", "product_id"}},
		},
		{
			Name: "history", Table: "history", PrimaryKey: pk(), Subject: ability.History,
			Fields: fields(
				Field{Name: "customer_id", Type: "bigint", Required: true, References: ref("customers", "CASCADE")},
				Field{Name: "product_id", Type: "bigint", Required: true, References: ref("products", "CASCADE")},
			),
		},
		{
			Name: "order", Table: "orders", PrimaryKey: pk(), Subject: ability.Order,
			Fields: fields(
				Field{Name: "customer_id", Type: "bigint", Required: true, References: ref("customers", "CASCADE")},
				Field{Name: "address_id", Type: "bigint", Required: true, References: ref("addresses", "")},
				Field{Name: "voucher_id", Type: "bigint", Nullable: true, References: ref("vouchers", "SET NULL")},
				Field{Name: "status", Type: "string", Required: true, Default: "PENDING"},
				Field{Name: "payment_type", Type: "string", Required: true},
				Field{Name: "subtotal", Type: "float", Required: true},
				Field{Name: "discount", Type: "float", Required: true, Default: 0.0},
				Field{Name: "total", Type: "float", Required: true},
			),
		},
		{
			Name: "order_product", Table: "order_products", PrimaryKey: pk(),
			Fields: fields(
				Field{Name: "order_id", Type: "bigint", Required: true, References: ref("orders", "CASCADE")},
				Field{Name: "product_variant_id", Type: "bigint", Required: true, References: ref("product_variants", "")},
				Field{Name: "quantity", Type: "int", Required: true},
				Field{Name: "price", Type: "float", Required: true},
			),
		},
		{
			Name: "order_transaction", Table: "order_transactions", PrimaryKey: pk(), Subject: ability.OrderTransaction,
			Fields: fields(
				Field{Name: "order_id", Type: "bigint", Required: true, References: ref("orders", "CASCADE")},
				Field{Name: "amount", Type: "float", Required: true},
				Field{Name: "type", Type: "string", Required: true, Enum: []string{"CREDIT", "DEBIT"}},
				Field{Name: "payment_state", Type: "string", Required: true},
				Field{Name: "payment_id", Type: "string", Nullable: true},
			),
		},
	}
}
