// Package entity defines the domain records of the portal — users, courses,
// course offerings, semesters, authentication domains, and login sessions —
// as plain records over the store's persistence port. Each entity type
// declares its attribute and relationship keys in a schema built once at
// process start, so unknown keys fail at wiring time instead of deep inside a
// request. Typed accessor wrappers give call sites compile-time safety on
// top of the generic port.
package entity

import (
	"github.com/web-cat/core/internal/coresrv/store"
)

// Entity type names.
const (
	TypeUser           = "User"
	TypeAuthDomain     = "AuthenticationDomain"
	TypeLoginSession   = "LoginSession"
	TypeCourse         = "Course"
	TypeCourseOffering = "CourseOffering"
	TypeSemester       = "Semester"
)

// Attribute keys.
const (
	KeyUserName     = "userName"
	KeyPasswordHash = "passwordHash"
	KeyFirstName    = "firstName"
	KeyLastName     = "lastName"
	KeyEmail        = "email"
	KeyAccessLevel  = "accessLevel"

	KeyPropertyName       = "propertyName"
	KeyDisplayableName    = "displayableName"
	KeyDefaultEmailDomain = "defaultEmailDomain"
	KeyTimeFormat         = "timeFormat"
	KeyDateFormat         = "dateFormat"
	KeyTimeZoneName       = "timeZoneName"

	KeySessionID      = "sessionID"
	KeyExpirationTime = "expirationTime"

	KeyDepartment   = "department"
	KeyCourseNumber = "number"
	KeyCourseName   = "name"

	KeyCRN   = "crn"
	KeyLabel = "label"

	KeySeason = "season"
	KeyYear   = "year"
)

// Relationship keys.
const (
	RelAuthenticationDomain = "authenticationDomain"
	RelUsers                = "users"
	RelUser                 = "user"
	RelEnrolledIn           = "enrolledIn"
	RelTeaching             = "teaching"
	RelGraderFor            = "graderFor"
	RelStudents             = "students"
	RelInstructors          = "instructors"
	RelGraders              = "graders"
	RelCourse               = "course"
	RelSemester             = "semester"
	RelOfferings            = "offerings"
)

// Access levels. Higher levels imply all lower-level privileges.
const (
	LevelStudent    = 0
	LevelGrader     = 30
	LevelInstructor = 50
	LevelAdmin      = 90
)

var schemas store.SchemaSet

func init() {
	schemas = store.SchemaSet{
		TypeUser: store.NewSchema(TypeUser,
			[]string{KeyUserName, KeyPasswordHash, KeyFirstName, KeyLastName, KeyEmail, KeyAccessLevel},
			map[string]store.Relationship{
				RelAuthenticationDomain: {Target: TypeAuthDomain, Inverse: RelUsers},
				RelEnrolledIn:           {Target: TypeCourseOffering, Inverse: RelStudents},
				RelTeaching:             {Target: TypeCourseOffering, Inverse: RelInstructors},
				RelGraderFor:            {Target: TypeCourseOffering, Inverse: RelGraders},
			}),
		TypeAuthDomain: store.NewSchema(TypeAuthDomain,
			[]string{KeyPropertyName, KeyDisplayableName, KeyDefaultEmailDomain, KeyTimeFormat, KeyDateFormat, KeyTimeZoneName},
			map[string]store.Relationship{
				RelUsers: {Target: TypeUser, Inverse: RelAuthenticationDomain},
			}),
		TypeLoginSession: store.NewSchema(TypeLoginSession,
			[]string{KeySessionID, KeyExpirationTime},
			map[string]store.Relationship{
				RelUser: {Target: TypeUser},
			}),
		TypeCourse: store.NewSchema(TypeCourse,
			[]string{KeyDepartment, KeyCourseNumber, KeyCourseName},
			map[string]store.Relationship{
				RelOfferings: {Target: TypeCourseOffering, Inverse: RelCourse},
			}),
		TypeCourseOffering: store.NewSchema(TypeCourseOffering,
			[]string{KeyCRN, KeyLabel},
			map[string]store.Relationship{
				RelCourse:      {Target: TypeCourse, Inverse: RelOfferings},
				RelSemester:    {Target: TypeSemester, Inverse: RelOfferings},
				RelInstructors: {Target: TypeUser, Inverse: RelTeaching},
				RelGraders:     {Target: TypeUser, Inverse: RelGraderFor},
				RelStudents:    {Target: TypeUser, Inverse: RelEnrolledIn},
			}),
		TypeSemester: store.NewSchema(TypeSemester,
			[]string{KeySeason, KeyYear},
			map[string]store.Relationship{
				RelOfferings: {Target: TypeCourseOffering, Inverse: RelSemester},
			}),
	}
}

// Schemas returns the schema set for all domain entities.
func Schemas() store.SchemaSet {
	return schemas
}

// stringAttr reads a string attribute, returning "" for unset values.
func stringAttr(o store.EnterpriseObject, key string) string {
	v, err := o.Get(key)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// intAttr reads a numeric attribute. Numeric attributes are stored as
// float64 so the in-memory and JSON-document representations agree.
func intAttr(o store.EnterpriseObject, key string) int {
	v, err := o.Get(key)
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
