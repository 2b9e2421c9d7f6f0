//go:build windows

package privilege

import "golang.org/x/sys/windows"

// SupportsElevation is true on Windows, where the install generation may need
// a UAC prompt.
const SupportsElevation = true

// IsAdmin returns true if the process token is elevated, or failing that, if
// it is a member of the builtin Administrators group.
func IsAdmin() bool {
	if windows.GetCurrentProcessToken().IsElevated() {
		return true
	}

	var sid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)
	member, err := windows.Token(0).IsMember(sid)
	return err == nil && member
}
