package ha

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalForSyslog_CollapsesMasterAndSlave(t *testing.T) {
	assert.Equal(t, "ha:gw-x", CanonicalForSyslog("gw-x_Master"))
	assert.Equal(t, "ha:gw-x", CanonicalForSyslog("gw-x_Slave"))
}

func TestCanonicalForImport_NeverCollapses(t *testing.T) {
	assert.Equal(t, "gw-x_Master", CanonicalForImport("gw-x_Master"))
}

func TestCanonical_Standalone(t *testing.T) {
	r := Canonical("fw1")
	assert.Equal(t, "fw1", r.FirewallKey)
	assert.Empty(t, r.Member)
}

func TestCanonical_EmptyBase(t *testing.T) {
	r := Canonical("_Master")
	assert.Equal(t, "_Master", r.FirewallKey)
}

func TestExpandMembers(t *testing.T) {
	assert.ElementsMatch(t, []string{"gw-x_Master", "gw-x_Slave"}, ExpandMembers("ha:gw-x"))
	assert.Equal(t, []string{"fw1"}, ExpandMembers("fw1"))
}
