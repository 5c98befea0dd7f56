package datasource

import (
	"go-dbsync/internal/common/api"
	"go-dbsync/internal/config"
	"go-dbsync/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type DataSourceApi struct {
	controller *DataSourceController
	config     *config.Config
}

func NewDataSourceApi(controller *DataSourceController, config *config.Config) api.Route {
	return &DataSourceApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers datasource and view routes
func (h *DataSourceApi) Setup(app *fiber.App) {
	ds := app.Group("/api/datasources", middleware.AuthMiddleware(h.config.SkipAuth))

	ds.Get("/", h.controller.ListDataSources)
	ds.Post("/", middleware.RequireRole(middleware.RoleAdmin), h.controller.CreateDataSource)
	ds.Get("/:id", h.controller.GetDataSource)
	ds.Patch("/:id", middleware.RequireRole(middleware.RoleAdmin), h.controller.UpdateDataSource)
	ds.Delete("/:id", middleware.RequireRole(middleware.RoleAdmin), h.controller.DeleteDataSource)
	ds.Post("/:id/test", h.controller.TestConnection)
	ds.Get("/:id/tables", h.controller.ListTables)
	ds.Get("/:id/tables/:table/schema", h.controller.GetSchema)
	ds.Get("/:id/tables/:table/data", h.controller.SampleData)
	ds.Get("/:id/views", h.controller.ListViews)
	ds.Post("/:id/views", middleware.RequireRole(middleware.RoleAdmin), h.controller.CreateView)

	views := app.Group("/api/views", middleware.AuthMiddleware(h.config.SkipAuth))
	views.Get("/:viewId", h.controller.GetView)
	views.Patch("/:viewId", middleware.RequireRole(middleware.RoleAdmin), h.controller.UpdateView)
	views.Delete("/:viewId", middleware.RequireRole(middleware.RoleAdmin), h.controller.DeleteView)
	views.Get("/:viewId/records", h.controller.ViewRecords)
	views.Get("/:viewId/count", h.controller.CountView)
}

