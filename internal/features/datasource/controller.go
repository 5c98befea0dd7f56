package datasource

import (
	"context"
	"errors"
	"time"

	"go-dbsync/internal/adapters"
	"go-dbsync/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const requestTimeout = 30 * time.Second

type DataSourceController struct {
	Service DataSourceService
}

func NewDataSourceController(service DataSourceService) *DataSourceController {
	return &DataSourceController{
		Service: service,
	}
}

// errorStatus maps service errors onto HTTP status codes.
func errorStatus(err error) int {
	var cfgErr *adapters.ConfigurationError
	var connErr *adapters.ConnectionError
	switch {
	case IsNotFound(err):
		return fiber.StatusNotFound
	case errors.As(err, &cfgErr):
		return fiber.StatusBadRequest
	case errors.As(err, &connErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func errorResponse(c *fiber.Ctx, err error) error {
	body := fiber.Map{"error": err.Error()}
	if s := adapters.Suggest(err); s != "" {
		body["suggestion"] = s
	}
	return c.Status(errorStatus(err)).JSON(body)
}

func (ctrl *DataSourceController) CreateDataSource(c *fiber.Ctx) error {
	var ds models.DataSource
	if err := c.BodyParser(&ds); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ctrl.Service.CreateDataSource(ctx, &ds); err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Datasource created successfully",
		"data":    ds,
	})
}

func (ctrl *DataSourceController) ListDataSources(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	list, err := ctrl.Service.ListDataSources(ctx)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"data": list})
}

func (ctrl *DataSourceController) GetDataSource(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ds, err := ctrl.Service.GetDataSource(ctx, c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(ds)
}

func (ctrl *DataSourceController) UpdateDataSource(c *fiber.Ctx) error {
	var updates map[string]interface{}
	if err := c.BodyParser(&updates); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ctrl.Service.UpdateDataSource(ctx, c.Params("id"), updates); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Datasource updated successfully",
	})
}

func (ctrl *DataSourceController) DeleteDataSource(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ctrl.Service.DeleteDataSource(ctx, c.Params("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Datasource deleted successfully",
	})
}

func (ctrl *DataSourceController) TestConnection(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	result, err := ctrl.Service.TestConnection(ctx, c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(result)
}

func (ctrl *DataSourceController) ListTables(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	tables, err := ctrl.Service.ListTables(ctx, c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"tables": tables})
}

func (ctrl *DataSourceController) GetSchema(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	schema, err := ctrl.Service.GetSchema(ctx, c.Params("id"), c.Params("table"), c.QueryBool("refresh"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"columns":    schema.Columns,
		"fetched_at": schema.FetchedAt,
	})
}

// SampleData accepts ?limit= and ?filters= (JSON, any filter wire shape).
func (ctrl *DataSourceController) SampleData(c *fiber.Ctx) error {
	var filters models.Filter
	if raw := c.Query("filters"); raw != "" {
		f, err := adapters.ParseFilter(raw)
		if err != nil {
			return errorResponse(c, err)
		}
		filters = f
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	data, err := ctrl.Service.SampleData(ctx, c.Params("id"), SampleDataRequest{
		Table:   c.Params("table"),
		Limit:   c.QueryInt("limit", defaultSampleLimit),
		Filters: filters,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(data)
}

func (ctrl *DataSourceController) CreateView(c *fiber.Ctx) error {
	var view models.View
	if err := c.BodyParser(&view); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if c.Params("id") != "" {
		oid, err := primitive.ObjectIDFromHex(c.Params("id"))
		if err != nil {
			return errorResponse(c, err)
		}
		view.DataSourceID = oid
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ctrl.Service.CreateView(ctx, &view); err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

func (ctrl *DataSourceController) ListViews(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	views, err := ctrl.Service.ListViews(ctx, c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(views)
}

func (ctrl *DataSourceController) GetView(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	view, err := ctrl.Service.GetView(ctx, c.Params("viewId"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(view)
}

func (ctrl *DataSourceController) UpdateView(c *fiber.Ctx) error {
	var updates map[string]interface{}
	if err := c.BodyParser(&updates); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id := c.Params("viewId")
	if err := ctrl.Service.UpdateView(ctx, id, updates); err != nil {
		return errorResponse(c, err)
	}
	view, err := ctrl.Service.GetView(ctx, id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(view)
}

func (ctrl *DataSourceController) DeleteView(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ctrl.Service.DeleteView(ctx, c.Params("viewId")); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (ctrl *DataSourceController) ViewRecords(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	page, err := ctrl.Service.ViewRecords(ctx, c.Params("viewId"), c.QueryInt("page", 1), c.QueryInt("limit", defaultSampleLimit))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(page)
}

func (ctrl *DataSourceController) CountView(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	count, err := ctrl.Service.CountView(ctx, c.Params("viewId"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(count)
}
