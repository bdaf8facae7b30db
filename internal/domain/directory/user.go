package directory

import "time"

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleCoordinator  Role = "coordinator"
	RoleFieldOfficer Role = "field_officer"
	RoleReporter     Role = "reporter"
)

// User is the read model of the portal's users table. The user CRUD subsystem owns the
// table; this package only reads it.
type User struct {
	ID        int64     `gorm:"primaryKey;column:id" json:"id"`
	Name      string    `gorm:"column:name" json:"name"`
	Email     string    `gorm:"column:email;uniqueIndex" json:"email"`
	Role      Role      `gorm:"column:role;index" json:"role"`
	Active    bool      `gorm:"column:active;not null" json:"active"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// GroupTag names a broadcast audience.
type GroupTag string

const (
	GroupAllFieldOfficers GroupTag = "all_field_officers"
	GroupAllReporters     GroupTag = "all_reporters"
	GroupAllCoordinators  GroupTag = "all_coordinators"
	GroupAllAdmins        GroupTag = "all_admins"
	GroupAllStaff         GroupTag = "all_staff"
	GroupAllUsers         GroupTag = "all_users"
)

// groupRoles is the closed set of tags. A nil role list means every active user.
var groupRoles = map[GroupTag][]Role{
	GroupAllFieldOfficers: {RoleFieldOfficer},
	GroupAllReporters:     {RoleReporter},
	GroupAllCoordinators:  {RoleCoordinator},
	GroupAllAdmins:        {RoleAdmin},
	GroupAllStaff:         {RoleAdmin, RoleCoordinator, RoleFieldOfficer},
	GroupAllUsers:         nil,
}

// Roles returns the roles a tag covers and whether the tag is known.
func (g GroupTag) Roles() ([]Role, bool) {
	roles, ok := groupRoles[g]
	return roles, ok
}

func (g GroupTag) Valid() bool {
	_, ok := groupRoles[g]
	return ok
}
