// Package authz resolves capability checks against a user account. All
// permission decisions in the service layer go through Allowed so the admin
// bypass lives in exactly one place.
package authz

import "grinkrawear/backend/internal/domain"

type Capability string

const (
	ViewInventory    Capability = "view_inventory"
	AddProduct       Capability = "add_product"
	EditProduct      Capability = "edit_product"
	DeleteProduct    Capability = "delete_product"
	ManageCategories Capability = "manage_categories"
	AdjustStock      Capability = "adjust_stock"
	ViewBilling      Capability = "view_billing"
	CreateInvoice    Capability = "create_invoice"
	CancelInvoice    Capability = "cancel_invoice"
	ManageCustomers  Capability = "manage_customers"
	ManageUsers      Capability = "manage_users"
)

// Allowed reports whether the account may exercise the capability. Admins
// pass every check; everyone else is bound to their flags.
func Allowed(account domain.UserAccount, cap Capability) bool {
	if !account.Active {
		return false
	}
	if account.Role == domain.RoleAdmin {
		return true
	}
	c := account.Capabilities
	switch cap {
	case ViewInventory:
		return c.ViewInventory
	case AddProduct:
		return c.AddProduct
	case EditProduct:
		return c.EditProduct
	case DeleteProduct:
		return c.DeleteProduct
	case ManageCategories:
		return c.ManageCategories
	case AdjustStock:
		return c.AdjustStock
	case ViewBilling:
		return c.ViewBilling
	case CreateInvoice:
		return c.CreateInvoice
	case CancelInvoice:
		return c.CancelInvoice
	case ManageCustomers:
		return c.ManageCustomers
	case ManageUsers:
		return c.ManageUsers
	}
	return false
}

// Resolve returns the full set of capabilities the account holds, admin
// bypass applied. Handy for the login response and the users API.
func Resolve(account domain.UserAccount) domain.Capabilities {
	if account.Role == domain.RoleAdmin && account.Active {
		return domain.Capabilities{
			ViewInventory: true, AddProduct: true, EditProduct: true,
			DeleteProduct: true, ManageCategories: true, AdjustStock: true,
			ViewBilling: true, CreateInvoice: true, CancelInvoice: true,
			ManageCustomers: true, ManageUsers: true,
		}
	}
	if !account.Active {
		return domain.Capabilities{}
	}
	return account.Capabilities
}
