package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/temcen/lotus/internal/docs"
	"github.com/temcen/lotus/internal/services"
)

type Handlers struct {
	Health     *HealthHandler
	Assessment *AssessmentHandler
	Ingredient *IngredientHandler
	Docs       *docs.SwaggerHandler
}

func New(logger *logrus.Logger, services *services.Services) *Handlers {
	return &Handlers{
		Health:     NewHealthHandler(logger, services.Health),
		Assessment: NewAssessmentHandler(services.Assessment, logger),
		Ingredient: NewIngredientHandler(services.Assessment, services.Library, logger),
		Docs:       docs.NewSwaggerHandler(docs.GetSwaggerConfig(), services.Schemas),
	}
}
