package root

import (
	"github.com/xreason-ai/identity-core/apps/cli/cmd/auth"
	tenantcmd "github.com/xreason-ai/identity-core/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(tenantcmd.Command())
}
