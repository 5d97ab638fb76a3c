package rbac

import "strings"

// Actions.
const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	Wildcard     = "*"
)

// Resources.
const (
	ResourceTours        = "tours"
	ResourceBlogs        = "blogs"
	ResourceVehicles     = "vehicles"
	ResourceEvents       = "events"
	ResourceDestinations = "destinations"
	ResourceGallery      = "gallery"
	ResourceTestimonials = "testimonials"
	ResourceBookings     = "bookings"
	ResourceInquiries    = "inquiries"
	ResourcePages        = "pages"
	ResourceSettings     = "settings"
	ResourceUsers        = "users"
	ResourceDashboard    = "dashboard"
)

// AdminPrefix is the route prefix under which CanAccessRoute derives resources.
const AdminPrefix = "/admin"

// Permission grants Actions on Resource. Either may be Wildcard.
type Permission struct {
	Resource string
	Actions  []string
}

var (
	fullCRUD  = []string{ActionRead, ActionCreate, ActionUpdate, ActionDelete}
	authoring = []string{ActionRead, ActionCreate, ActionUpdate}
)

var table = map[Role][]Permission{
	RoleAdmin: {
		{Resource: Wildcard, Actions: []string{Wildcard}},
	},
	RoleContentManager: {
		{Resource: ResourceTours, Actions: fullCRUD},
		{Resource: ResourceBlogs, Actions: fullCRUD},
		{Resource: ResourceVehicles, Actions: fullCRUD},
		{Resource: ResourceEvents, Actions: fullCRUD},
		{Resource: ResourceDestinations, Actions: fullCRUD},
		{Resource: ResourceGallery, Actions: fullCRUD},
		{Resource: ResourceTestimonials, Actions: fullCRUD},
		{Resource: ResourceBookings, Actions: fullCRUD},
		{Resource: ResourceInquiries, Actions: fullCRUD},
		{Resource: ResourcePages, Actions: fullCRUD},
		{Resource: ResourceSettings, Actions: []string{ActionRead}},
	},
	RoleEditor: {
		{Resource: ResourceTours, Actions: authoring},
		{Resource: ResourceBlogs, Actions: authoring},
		{Resource: ResourceEvents, Actions: authoring},
		{Resource: ResourceGallery, Actions: authoring},
		{Resource: ResourceTestimonials, Actions: authoring},
	},
}

// Permissions returns a copy of the grants for role.
func Permissions(role Role) []Permission {
	src := table[role]
	out := make([]Permission, len(src))
	for i, p := range src {
		out[i] = Permission{Resource: p.Resource, Actions: append([]string(nil), p.Actions...)}
	}
	return out
}

// HasPermission reports whether role may perform action on resource. An empty
// action means read. Unknown roles are denied.
func HasPermission(role Role, resource, action string) bool {
	if action == "" {
		action = ActionRead
	}
	grants, ok := table[role]
	if !ok {
		return false
	}

	for _, p := range grants {
		if p.Resource == Wildcard && contains(p.Actions, Wildcard) {
			return true
		}
	}
	for _, p := range grants {
		if p.Resource == resource && contains(p.Actions, action) {
			return true
		}
	}
	for _, p := range grants {
		resourceMatch := p.Resource == resource || p.Resource == Wildcard
		actionMatch := contains(p.Actions, action) || contains(p.Actions, Wildcard)
		if resourceMatch && actionMatch {
			return true
		}
	}
	return false
}

// CanAccessRoute reports whether role may open the admin route path. The
// dashboard root is open to every defined role and the user-management tree is
// admin-only regardless of the table. Paths outside the admin prefix are denied.
func CanAccessRoute(role Role, path string) bool {
	if !role.Valid() {
		return false
	}

	resource, ok := resourceFromPath(path)
	if !ok {
		return false
	}

	switch resource {
	case "", ResourceDashboard:
		return true
	case ResourceUsers:
		return role == RoleAdmin
	}
	return HasPermission(role, resource, ActionRead)
}

func resourceFromPath(path string) (string, bool) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimRight(path, "/")
	if path == AdminPrefix {
		return "", true
	}
	rest, ok := strings.CutPrefix(path, AdminPrefix+"/")
	if !ok {
		return "", false
	}
	seg, _, _ := strings.Cut(rest, "/")
	return strings.ToLower(seg), true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
