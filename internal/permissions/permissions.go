// Package permissions holds the permission vocabulary and the gate that
// evaluates a role's JSON-encoded permission set against it.
package permissions

import "encoding/json"

const (
	ViewDroplets  = "view_droplets"
	CreateDroplet = "create_droplet"
	EditDroplet   = "edit_droplet"
	DeleteDroplet = "delete_droplet"
	PowerDroplet  = "power_droplet"

	ViewFirewalls  = "view_firewalls"
	CreateFirewall = "create_firewall"
	EditFirewall   = "edit_firewall"
	DeleteFirewall = "delete_firewall"

	ViewUsers  = "view_users"
	CreateUser = "create_user"
	EditUser   = "edit_user"
	DeleteUser = "delete_user"

	ViewRoles  = "view_roles"
	CreateRole = "create_role"
	EditRole   = "edit_role"
	DeleteRole = "delete_role"

	ViewSettings = "view_settings"
	EditSettings = "edit_settings"

	ViewServerConfigs = "view_server_configs"
	EditServerConfigs = "edit_server_configs"

	ViewActivity  = "view_activity"
	ManageBalance = "manage_balance"
)

// All lists the full vocabulary in display order.
var All = []string{
	ViewDroplets, CreateDroplet, EditDroplet, DeleteDroplet, PowerDroplet,
	ViewFirewalls, CreateFirewall, EditFirewall, DeleteFirewall,
	ViewUsers, CreateUser, EditUser, DeleteUser,
	ViewRoles, CreateRole, EditRole, DeleteRole,
	ViewSettings, EditSettings,
	ViewServerConfigs, EditServerConfigs,
	ViewActivity, ManageBalance,
}

const (
	RoleAdmin    = "admin"
	RoleUser     = "user"
	RoleSupport  = "support"
	RoleReadonly = "readonly"
)

var Defaults = map[string][]string{
	RoleAdmin: All,
	RoleUser: {
		ViewDroplets, CreateDroplet, EditDroplet, DeleteDroplet, PowerDroplet,
		ViewFirewalls, CreateFirewall, EditFirewall, DeleteFirewall,
		ViewServerConfigs,
	},
	RoleSupport: {
		ViewDroplets, PowerDroplet, ViewFirewalls, ViewUsers, ViewActivity,
	},
	RoleReadonly: {ViewDroplets, ViewFirewalls},
}

func Known(p string) bool {
	for _, k := range All {
		if k == p {
			return true
		}
	}
	return false
}

// parse decodes a permission set. Anything that is not a JSON array of
// strings is the empty set.
func parse(set string) map[string]struct{} {
	if set == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(set), &list); err != nil {
		return nil
	}
	m := make(map[string]struct{}, len(list))
	for _, p := range list {
		m[p] = struct{}{}
	}
	return m
}

func Has(set, required string) bool {
	_, ok := parse(set)[required]
	return ok
}

func HasAny(set string, required ...string) bool {
	granted := parse(set)
	for _, p := range required {
		if _, ok := granted[p]; ok {
			return true
		}
	}
	return false
}

// HasAll is false for malformed sets even when required is empty.
func HasAll(set string, required ...string) bool {
	granted := parse(set)
	if granted == nil {
		return false
	}
	for _, p := range required {
		if _, ok := granted[p]; !ok {
			return false
		}
	}
	return true
}

// Encode serializes a permission list for storage, dropping strings outside
// the vocabulary and duplicates.
func Encode(list []string) string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, p := range list {
		if !Known(p) {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// Decode returns the stored list, or an empty list for malformed input.
func Decode(set string) []string {
	var list []string
	if err := json.Unmarshal([]byte(set), &list); err != nil {
		return []string{}
	}
	return list
}
