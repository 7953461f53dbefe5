package ability

// Action is an operation kind. Manage matches every action.
type Action string

const (
	Manage Action = "manage"
	Create Action = "create"
	Read   Action = "read"
	Update Action = "update"
	Delete Action = "delete"
)

// Subject names a protected entity kind. All matches every subject.
type Subject string

const (
	All              Subject = "all"
	User             Subject = "User"
	UserInfo         Subject = "UserInfo"
	Address          Subject = "Address"
	Brand            Subject = "Brand"
	Category         Subject = "Category"
	Product          Subject = "Product"
	ProductVariant   Subject = "ProductVariant"
	ProductCustomer  Subject = "ProductCustomer"
	Country          Subject = "Country"
	Region           Subject = "Region"
	City             Subject = "City"
	Voucher          Subject = "Voucher"
	Wishlist         Subject = "Wishlist"
	Order            Subject = "Order"
	OrderTransaction Subject = "OrderTransaction"
	History          Subject = "History"
)

// Rule grants Actions on Subject. A nil Fields slice means the rule is not
// field-scoped; a nil Conditions means it applies to every instance.
type Rule struct {
	Actions    []Action  `json:"actions"`
	Subject    Subject   `json:"subject"`
	Fields     []string  `json:"fields,omitempty"`
	Conditions Condition `json:"conditions,omitempty"`
}

func (r Rule) matchesAction(a Action) bool {
	for _, ra := range r.Actions {
		if ra == Manage || ra == a {
			return true
		}
	}
	return false
}

func (r Rule) matchesSubject(s Subject) bool {
	return r.Subject == All || r.Subject == s
}

// matchesField reports whether the rule covers field. An empty field is a
// whole-entity check and is covered by field-scoped rules too.
func (r Rule) matchesField(field string) bool {
	if r.Fields == nil || field == "" {
		return true
	}
	for _, f := range r.Fields {
		if f == field {
			return true
		}
	}
	return false
}

func (r Rule) clone() Rule {
	out := r
	if r.Actions != nil {
		out.Actions = append([]Action(nil), r.Actions...)
	}
	if r.Fields != nil {
		out.Fields = append([]string(nil), r.Fields...)
	}
	if r.Conditions != nil {
		out.Conditions = append(Condition(nil), r.Conditions...)
	}
	return out
}

// knownFields lists the attributes each subject exposes to field-level
// checks. A query naming a field outside this set is always denied.
var knownFields = map[Subject][]string{
	User:             {"id", "email", "password", "role", "first_name", "last_name", "phone_number", "gender", "birth_date", "created_at", "updated_at"},
	UserInfo:         {"id", "first_name", "last_name", "phone_number", "gender", "birth_date"},
	Address:          {"id", "customer_id", "city_id", "address1", "address2", "is_default", "created_at", "updated_at"},
	Brand:            {"id", "name", "created_at", "updated_at"},
	Category:         {"id", "name", "parent_id", "created_at", "updated_at"},
	Product:          {"id", "gtin", "name", "description", "category_id", "brand_id", "created_at", "updated_at"},
	ProductVariant:   {"id", "product_id", "name", "sku", "price", "image", "created_at", "updated_at"},
	ProductCustomer:  {"id", "customer_id", "product_variant_id", "quantity", "created_at", "updated_at"},
	Country:          {"id", "name", "code", "created_at", "updated_at"},
	Region:           {"id", "country_id", "name", "created_at", "updated_at"},
	City:             {"id", "region_id", "name", "created_at", "updated_at"},
	Voucher:          {"id", "code", "percentage_discount", "upper_limit", "created_at", "updated_at"},
	Wishlist:         {"id", "customer_id", "title", "is_private", "created_at", "updated_at"},
	Order:            {"id", "customer_id", "address_id", "voucher_id", "status", "payment_type", "subtotal", "discount", "total", "created_at", "updated_at"},
	OrderTransaction: {"id", "order_id", "amount", "type", "payment_state", "payment_id", "created_at", "updated_at"},
	History:          {"id", "customer_id", "product_id", "created_at", "updated_at"},
}

// IsKnownSubject reports whether s is a subject the policy knows about.
func IsKnownSubject(s Subject) bool {
	_, ok := knownFields[s]
	return ok
}

// KnownFields returns a copy of the field set of s.
func KnownFields(s Subject) []string {
	return append([]string(nil), knownFields[s]...)
}

// IsKnownField reports whether field belongs to subject s.
func IsKnownField(s Subject, field string) bool {
	for _, f := range knownFields[s] {
		if f == field {
			return true
		}
	}
	return false
}
