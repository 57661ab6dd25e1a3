package registers

// CCP privilege values (spec §4.4).
const (
	CCPNoAccess         = 0x00000000
	CCPExclusive        = 0x00000001
	CCPPrimary          = 0x00000200
	CCPExclusivePrimary = 0x00000201
)

func isValidCCP(v uint32) bool {
	switch v {
	case CCPNoAccess, CCPExclusive, CCPPrimary, CCPExclusivePrimary:
		return true
	default:
		return false
	}
}

// CCP owns the active privilege bitfield and key. Transitions are direct —
// any valid value overwrites the current one, there is no ordering
// protocol (spec §4.4).
type CCP struct {
	privilege uint32
	key       uint32
}

// Privilege returns the current CCP state.
func (c *CCP) Privilege() uint32 { return c.privilege }

// Key returns the current CCP key.
func (c *CCP) Key() uint32 { return c.key }

// SetPrivilege validates and applies a wire write to the CCP register. An
// invalid value is rejected and the prior state preserved.
func (c *CCP) SetPrivilege(v uint32) bool {
	if !isValidCCP(v) {
		return false
	}
	c.privilege = v
	return true
}

// SetKey applies a wire write to the CCP key register; any u32 is accepted.
func (c *CCP) SetKey(v uint32) { c.key = v }

// HasAccess reports whether register writes other than to CCP/CCP-key are
// currently permitted (spec §4.4 gating rule).
func (c *CCP) HasAccess() bool { return c.privilege != CCPNoAccess }
