package rbac

// Default policy. Trainees act only on their own enrollments and attempts;
// ownership is enforced by the handlers, these grants just open the routes.
var RolePermissions = map[string][]string{
	"trainee": {
		"assessment:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
		"progress:record",
		"progress:view-own",
		"enrollment:drop",
	},
	"instructor": {
		"course:author",
		"assessment:create",
		"assessment:view",
		"attempt:view-all",
		"progress:view-all",
		"enrollment:drop",
		"users:bulk_upsert",
		"users:list",
	},
	"admin": {
		"*",
	},
}
