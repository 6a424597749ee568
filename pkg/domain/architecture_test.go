package domain

import (
	"testing"

	"buildcore/testutil"
)

func TestDomainStaysDependencyFree(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden,
		"pkg/domain must not import internal packages")
	testutil.AssertNoDirectImports(t, ".", testutil.ThirdPartyImportForbidden,
		"pkg/domain must stay standard-library only")
}
