// Package rest exposes the registry over HTTP using gin, the same
// router framework the teacher registry used. The ErrorResponse
// envelope and route layout are carried over from the teacher's
// routes.go; the handlers themselves now call into internal/registry
// instead of the teacher's NATS-backed store.
package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"schemaregistry/internal/catalog"
	"schemaregistry/internal/kafkalog"
	"schemaregistry/internal/registry"
	"schemaregistry/internal/schema"
)

type ErrorResponse struct {
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

func fail(c *gin.Context, status, code int, err error) {
	c.JSON(status, ErrorResponse{ErrorCode: code, Message: err.Error()})
}

// Router wraps a *registry.Registry with the gin handlers that serve it.
type Router struct {
	reg *registry.Registry
}

func NewRouter(reg *registry.Registry) *Router {
	return &Router{reg: reg}
}

func (rt *Router) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/subjects", rt.listSubjects)
	r.GET("/subjects/:subject/versions", rt.listVersions)
	r.POST("/subjects/:subject/versions", rt.registerSchema)
	r.GET("/subjects/:subject/versions/:version", rt.getVersion)
	r.GET("/subjects/:subject/versions/:version/schema", rt.getVersionSchemaOnly)
	r.DELETE("/subjects/:subject/versions/:version", rt.deleteVersion)
	r.DELETE("/subjects/:subject", rt.deleteSubject)

	r.GET("/schemas/ids/:id", rt.getByID)

	r.POST("/compatibility/subjects/:subject/versions/:version", rt.checkCompatibility)

	r.GET("/config", rt.getGlobalConfig)
	r.PUT("/config", rt.putGlobalConfig)
	r.GET("/config/:subject", rt.getSubjectConfig)
	r.PUT("/config/:subject", rt.putSubjectConfig)

	r.GET("/mode", rt.getGlobalMode)
	r.PUT("/mode", rt.putGlobalMode)
	r.GET("/mode/:subject", rt.getSubjectMode)
	r.PUT("/mode/:subject", rt.putSubjectMode)

	r.GET("/health/ready", rt.healthReady)

	return r
}

func includeDeleted(c *gin.Context) bool {
	v, _ := strconv.ParseBool(c.Query("deleted"))
	return v
}

func (rt *Router) resolveVersion(c *gin.Context, subject string, deleted bool) (int, error) {
	raw := c.Param("version")
	if raw == "latest" {
		e, err := rt.reg.LatestVersion(subject, deleted)
		if err != nil {
			return 0, err
		}
		return e.Version, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("version must be an integer or \"latest\"")
	}
	return v, nil
}

func entryJSON(e *catalog.Entry) gin.H {
	return gin.H{
		"subject":    e.Subject,
		"version":    e.Version,
		"id":         e.ID,
		"schema":     e.Text,
		"schemaType": string(e.Kind),
	}
}

func (rt *Router) listSubjects(c *gin.Context) {
	c.JSON(http.StatusOK, rt.reg.ListSubjects(includeDeleted(c)))
}

func (rt *Router) listVersions(c *gin.Context) {
	versions, err := rt.reg.ListVersions(c.Param("subject"), includeDeleted(c))
	if err != nil {
		fail(c, http.StatusNotFound, 40401, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

type registerRequest struct {
	Schema     string             `json:"schema" binding:"required"`
	SchemaType string             `json:"schemaType"`
	References []schema.Reference `json:"references"`
}

func (rt *Router) registerSchema(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 42201, err)
		return
	}
	kind := schema.Kind(req.SchemaType)
	if kind == "" {
		kind = schema.KindAvro
	}
	if !kind.Valid() {
		fail(c, http.StatusUnprocessableEntity, 42201, errors.New("unknown schemaType"))
		return
	}

	result, err := rt.reg.WriteNewSchema(c.Request.Context(), registry.RegisterInput{
		Subject:    c.Param("subject"),
		Kind:       kind,
		Text:       req.Schema,
		References: req.References,
	})
	if err != nil {
		writeRegisterError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": result.ID})
}

func writeRegisterError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrIncompatible):
		fail(c, http.StatusConflict, 409, err)
	case errors.Is(err, registry.ErrNotMaster):
		fail(c, http.StatusMisdirectedRequest, 42203, err)
	case errors.Is(err, registry.ErrSubjectLocked):
		fail(c, http.StatusUnprocessableEntity, 42205, err)
	case errors.Is(err, schema.ErrInvalidSchema), errors.Is(err, schema.ErrUnresolvedDependency):
		fail(c, http.StatusUnprocessableEntity, 42201, err)
	default:
		fail(c, http.StatusInternalServerError, 50001, err)
	}
}

func (rt *Router) getVersion(c *gin.Context) {
	subject := c.Param("subject")
	deleted := includeDeleted(c)
	version, err := rt.resolveVersion(c, subject, deleted)
	if err != nil {
		fail(c, http.StatusNotFound, 40402, err)
		return
	}
	e, err := rt.reg.SubjectVersionGet(subject, version, deleted)
	if err != nil {
		fail(c, http.StatusNotFound, 40402, err)
		return
	}
	c.JSON(http.StatusOK, entryJSON(e))
}

func (rt *Router) getVersionSchemaOnly(c *gin.Context) {
	subject := c.Param("subject")
	deleted := includeDeleted(c)
	version, err := rt.resolveVersion(c, subject, deleted)
	if err != nil {
		fail(c, http.StatusNotFound, 40402, err)
		return
	}
	e, err := rt.reg.SubjectVersionGet(subject, version, deleted)
	if err != nil {
		fail(c, http.StatusNotFound, 40402, err)
		return
	}
	c.String(http.StatusOK, e.Text)
}

func (rt *Router) deleteVersion(c *gin.Context) {
	subject := c.Param("subject")
	permanent, _ := strconv.ParseBool(c.Query("permanent"))
	version, err := rt.resolveVersion(c, subject, true)
	if err != nil {
		fail(c, http.StatusNotFound, 40402, err)
		return
	}
	if err := rt.reg.DeleteVersion(c.Request.Context(), subject, version, permanent); err != nil {
		writeDeleteError(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

func (rt *Router) deleteSubject(c *gin.Context) {
	permanent, _ := strconv.ParseBool(c.Query("permanent"))
	versions, err := rt.reg.DeleteSubject(c.Request.Context(), c.Param("subject"), permanent)
	if err != nil {
		writeDeleteError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

// writeDeleteError maps the delete-subsystem's soft/permanent gating
// errors onto the same 422 "can't do that yet" status the register
// path uses for ErrSubjectLocked, falling back to not-found for
// anything from the catalog (subject/version missing) and 500 for the
// rest.
func writeDeleteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrAlreadySoftDeleted), errors.Is(err, registry.ErrNotSoftDeleted):
		fail(c, http.StatusUnprocessableEntity, 42206, err)
	case errors.Is(err, registry.ErrNotMaster):
		fail(c, http.StatusMisdirectedRequest, 42203, err)
	case errors.Is(err, catalog.ErrSubjectNotFound), errors.Is(err, catalog.ErrVersionNotFound), errors.Is(err, catalog.ErrSoftDeleted):
		fail(c, http.StatusNotFound, 40401, err)
	default:
		fail(c, http.StatusInternalServerError, 50001, err)
	}
}

func (rt *Router) getByID(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, 40001, err)
		return
	}
	e, subjects, err := rt.reg.GetByID(id)
	if err != nil {
		fail(c, http.StatusNotFound, 40403, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"schema":     e.Text,
		"schemaType": string(e.Kind),
		"subjects":   subjects,
	})
}

type compatibilityRequest struct {
	Schema     string             `json:"schema" binding:"required"`
	SchemaType string             `json:"schemaType"`
	References []schema.Reference `json:"references"`
}

func (rt *Router) checkCompatibility(c *gin.Context) {
	var req compatibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 42201, err)
		return
	}
	kind := schema.Kind(req.SchemaType)
	if kind == "" {
		kind = schema.KindAvro
	}
	subject := c.Param("subject")
	ok, err := rt.reg.CheckCompatibility(subject, kind, req.Schema, req.References, rt.reg.SubjectCompatibility(subject))
	if err != nil {
		fail(c, http.StatusUnprocessableEntity, 42201, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_compatible": ok})
}

type configRequest struct {
	Compatibility string `json:"compatibility" binding:"required"`
}

func (rt *Router) getGlobalConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"compatibilityLevel": string(rt.reg.GlobalCompatibility())})
}

func (rt *Router) putGlobalConfig(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 42201, err)
		return
	}
	if err := rt.reg.SetConfig(c.Request.Context(), "", schema.CompatibilityLevel(req.Compatibility)); err != nil {
		fail(c, http.StatusUnprocessableEntity, 42203, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (rt *Router) getSubjectConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"compatibilityLevel": string(rt.reg.SubjectCompatibility(c.Param("subject")))})
}

func (rt *Router) putSubjectConfig(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 42201, err)
		return
	}
	if err := rt.reg.SetConfig(c.Request.Context(), c.Param("subject"), schema.CompatibilityLevel(req.Compatibility)); err != nil {
		fail(c, http.StatusUnprocessableEntity, 42203, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (rt *Router) getGlobalMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mode": rt.reg.SubjectMode("")})
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (rt *Router) putGlobalMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 42201, err)
		return
	}
	if err := rt.reg.SetMode(c.Request.Context(), "", kafkalog.SubjectMode(req.Mode)); err != nil {
		fail(c, http.StatusUnprocessableEntity, 42203, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (rt *Router) getSubjectMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mode": rt.reg.SubjectMode(c.Param("subject"))})
}

func (rt *Router) putSubjectMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 42201, err)
		return
	}
	if err := rt.reg.SetMode(c.Request.Context(), c.Param("subject"), kafkalog.SubjectMode(req.Mode)); err != nil {
		fail(c, http.StatusUnprocessableEntity, 42203, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (rt *Router) healthReady(c *gin.Context) {
	if !rt.reg.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}
