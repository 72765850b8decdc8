package filter

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"rentals/server/internal/models"
)

// MaxCachedPrograms bounds the compiled expression cache
const MaxCachedPrograms = 500

// Compiler compiles CEL expressions over a `property` variable and caches the programs.
type Compiler struct {
	env      *cel.Env
	programs map[string]cel.Program
	order    []string // insertion order for FIFO eviction
	mu       sync.RWMutex
}

func NewCompiler() (*Compiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("property", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Compiler{
		env:      env,
		programs: make(map[string]cel.Program),
		order:    make([]string, 0, MaxCachedPrograms),
	}, nil
}

// Compile returns the program for expr, compiling it on first use.
func (c *Compiler) Compile(expr string) (cel.Program, error) {
	c.mu.RLock()
	prg, ok := c.programs[expr]
	c.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid expression: %w", issues.Err())
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("invalid expression: result must be a boolean, got %s", out)
	}

	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build program: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.programs[expr]; !exists {
		if len(c.order) >= MaxCachedPrograms {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.programs, oldest)
		}
		c.order = append(c.order, expr)
		c.programs[expr] = prg
	}

	return prg, nil
}

// Evaluate runs expr against a single property
func (c *Compiler) Evaluate(expr string, p *models.Property) (bool, error) {
	prg, err := c.Compile(expr)
	if err != nil {
		return false, err
	}
	return evaluate(prg, p)
}

// ApplyExpression keeps the properties for which expr holds. A property whose evaluation
// fails is dropped; only a compile error is returned.
func (c *Compiler) ApplyExpression(properties []models.Property, expr string) ([]models.Property, error) {
	if expr == "" {
		return properties, nil
	}

	prg, err := c.Compile(expr)
	if err != nil {
		return nil, err
	}

	result := make([]models.Property, 0, len(properties))
	for i := range properties {
		ok, err := evaluate(prg, &properties[i])
		if err != nil || !ok {
			continue
		}
		result = append(result, properties[i])
	}
	return result, nil
}

func evaluate(prg cel.Program, p *models.Property) (bool, error) {
	out, _, err := prg.Eval(map[string]interface{}{
		"property": propertyVars(p),
	})
	if err != nil {
		return false, err
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression result is not boolean: %T", out.Value())
	}
	return result, nil
}

// propertyVars exposes a property to CEL under its JSON field names
func propertyVars(p *models.Property) map[string]interface{} {
	amenities := p.Amenities
	if amenities == nil {
		amenities = []string{}
	}
	images := p.Images
	if images == nil {
		images = []string{}
	}

	vars := map[string]interface{}{
		"id":            p.ID,
		"title":         p.Title,
		"description":   p.Description,
		"price":         int64(p.Price),
		"location":      p.Location,
		"property_type": string(p.PropertyType),
		"bedrooms":      int64(p.Bedrooms),
		"bathrooms":     int64(p.Bathrooms),
		"area":          int64(p.Area),
		"amenities":     amenities,
		"images":        images,
		"owner_id":      p.OwnerID,
		"is_available":  p.IsAvailable,
		"created_at":    p.CreatedAt,
	}
	if p.HasCoordinates() {
		vars["latitude"] = *p.Latitude
		vars["longitude"] = *p.Longitude
	}
	return vars
}
