package sqlassets

import _ "embed"

//go:embed schema/identity/users.sql
var UsersSQL string

//go:embed schema/identity/tenants.sql
var TenantsSQL string
