// @title           bio-links API
// @version         1.0
// @description     Manage an ordered list of links for a public link-in-bio page. Authenticate with a Personal Access Token.
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerToken
// @in              header
// @name            Authorization
// @description     Type "Bearer" followed by a space and your API token. Example: "Bearer bl_xxx"
package api
