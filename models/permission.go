package models

// Permission 共享权限
type Permission string

const (
	// PermissionViewer 查看/使用
	PermissionViewer Permission = "viewer"
	// PermissionEditor 查看/使用/修改
	PermissionEditor Permission = "editor"
)

// Valid 是否为合法的共享权限
func (p Permission) Valid() bool {
	switch p {
	case PermissionViewer, PermissionEditor:
		return true
	}
	return false
}

// AccessLevel 权限解析结果，数值越大权限越高
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessViewer
	AccessEditor
	AccessOwner
)

// AccessFromPermission 将共享权限映射为访问级别
func AccessFromPermission(p Permission) AccessLevel {
	switch p {
	case PermissionViewer:
		return AccessViewer
	case PermissionEditor:
		return AccessEditor
	}
	return AccessNone
}

// CanRead 可查看/使用标签
func (a AccessLevel) CanRead() bool { return a >= AccessViewer }

// CanWrite 可修改标签
func (a AccessLevel) CanWrite() bool { return a >= AccessEditor }

// CanManage 可删除标签、管理共享与邀请，仅所有者
func (a AccessLevel) CanManage() bool { return a == AccessOwner }

func (a AccessLevel) String() string {
	switch a {
	case AccessViewer:
		return "viewer"
	case AccessEditor:
		return "editor"
	case AccessOwner:
		return "owner"
	}
	return "none"
}
