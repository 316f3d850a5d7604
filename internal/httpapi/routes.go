package httpapi

import (
	"crm-platform/internal/guard"
	"crm-platform/internal/metrics"
	"crm-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register wires every route. Keep it free of business logic.
func (h *Handlers) Register(r *gin.Engine) {
	r.GET("/healthz", h.Health)
	r.GET("/metrics", metrics.Handler())

	resolve := h.Sessions.Middleware()
	perm := func(name string) gin.HandlerFunc { return rbac.RequirePermission(h.Policy, name) }
	adminOnly := rbac.RequireAnyRole(rbac.RoleAdmin)

	// Pages
	r.GET("/login", h.LoginPage)
	pages := r.Group("", resolve)
	for _, route := range guard.Pages() {
		pages.GET(route.Path, h.Guard.Page(route), h.RenderPage(route))
	}

	v1 := r.Group("/v1", resolve)

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/logout", h.Logout)
		authGroup.POST("/refresh", h.Refresh)
		authGroup.POST("/signup", h.SignUp)
		authGroup.POST("/accept-invitation", h.AcceptInvitation)
		authGroup.GET("/session", h.Session)
		authGroup.POST("/workspace", RequireSession(), h.SwitchWorkspace)
		authGroup.POST("/password", RequireSession(), h.ChangePassword)
	}

	signedIn := v1.Group("", RequireSession())
	signedIn.GET("/workspaces", h.ListWorkspaces)
	signedIn.POST("/workspaces", perm(rbac.PermAdminWorkspaces), h.CreateWorkspace)

	ws := signedIn.Group("", rbac.RequireWorkspace())

	usersGroup := ws.Group("/users", adminOnly, perm(rbac.PermAdminUsers))
	{
		usersGroup.GET("", h.ListUsers)
		usersGroup.GET("/stats", h.UserStats)
		usersGroup.GET("/:id", h.GetUser)
		usersGroup.PATCH("/:id/role", h.UpdateUserRole)
		usersGroup.PATCH("/:id/active", h.SetUserActive)
		usersGroup.POST("/:id/unlock", h.UnlockUser)
		usersGroup.POST("/:id/permissions", perm(rbac.PermAdminPermissions), h.GrantPermission)
		usersGroup.DELETE("/:id/permissions/:permission", perm(rbac.PermAdminPermissions), h.RevokePermission)
	}

	clientsGroup := ws.Group("/clients")
	{
		clientsGroup.GET("", perm(rbac.PermClientsView), h.ListClients)
		clientsGroup.GET("/stats", perm(rbac.PermClientsView), h.ClientStats)
		clientsGroup.GET("/:id", perm(rbac.PermClientsView), h.GetClient)
		clientsGroup.POST("", perm(rbac.PermClientsCreate), h.CreateClient)
		clientsGroup.PATCH("/:id", perm(rbac.PermClientsEdit), h.UpdateClient)
		clientsGroup.DELETE("/:id", perm(rbac.PermClientsDelete), h.DeleteClient)
	}

	projectsGroup := ws.Group("/projects")
	{
		projectsGroup.GET("", perm(rbac.PermBoardsView), h.ListProjects)
		projectsGroup.GET("/stats", perm(rbac.PermBoardsView), h.ProjectStats)
		projectsGroup.GET("/:id", perm(rbac.PermBoardsView), h.GetProject)
		projectsGroup.POST("", perm(rbac.PermBoardsCreate), h.CreateProject)
		projectsGroup.PATCH("/:id", perm(rbac.PermBoardsEdit), h.UpdateProject)
		projectsGroup.DELETE("/:id", perm(rbac.PermBoardsDelete), h.DeleteProject)

		projectsGroup.GET("/:id/tasks", perm(rbac.PermBoardsView), h.Board)
		projectsGroup.POST("/:id/tasks", perm(rbac.PermBoardsEdit), h.CreateTask)
		projectsGroup.PATCH("/:id/tasks/:taskId", perm(rbac.PermBoardsEdit), h.UpdateTask)
		projectsGroup.POST("/:id/tasks/:taskId/move", perm(rbac.PermBoardsEdit), h.MoveTask)
		projectsGroup.DELETE("/:id/tasks/:taskId", perm(rbac.PermBoardsEdit), h.DeleteTask)
	}

	invoicesGroup := ws.Group("/invoices", perm(rbac.PermClientsInvoices))
	{
		invoicesGroup.GET("", h.ListInvoices)
		invoicesGroup.GET("/stats", h.InvoiceStats)
		invoicesGroup.GET("/:id", h.GetInvoice)
		invoicesGroup.POST("", h.CreateInvoice)
		invoicesGroup.POST("/:id/send", h.SendInvoice)
		invoicesGroup.POST("/:id/pay", h.MarkInvoicePaid)
		invoicesGroup.POST("/:id/void", h.VoidInvoice)
	}

	extractions := ws.Group("/extractions", perm(rbac.PermAppsAIExtraction))
	{
		extractions.GET("", h.ListExtractions)
		extractions.POST("", h.RunExtraction)
		extractions.GET("/:id", h.GetExtraction)
		extractions.POST("/:id/apply", perm(rbac.PermClientsCreate), h.ApplyExtraction)
	}

	ws.GET("/activity", perm(rbac.PermAdminActivity), h.ListActivity)
	ws.GET("/dashboard", perm(rbac.PermDashboardView), h.DashboardSummary)

	admin := ws.Group("/admin", adminOnly)
	{
		admin.GET("/invitations", perm(rbac.PermAdminInvitations), h.ListInvitations)
		admin.POST("/invitations", perm(rbac.PermAdminInvitations), h.CreateInvitation)
		admin.GET("/email/status", perm(rbac.PermAdminEmailSetup), h.EmailStatus)
		admin.POST("/email/test", perm(rbac.PermAdminEmailSetup), h.SendTestEmail)
	}
}
