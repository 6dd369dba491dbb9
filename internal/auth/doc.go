// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

/*
Package auth provides authentication middleware for the automation API.

Custodia is not an identity provider. It verifies credentials presented by
callers and maps them to a role; issuing and distributing those credentials
is the operator's problem. Two credential types are accepted:

  - JWT bearer tokens (HS256, signed with JWT_SECRET) carrying username and
    role claims, enabled with AUTH_MODE=jwt
  - A shared X-Admin-Key header (ADMIN_API_KEY), always mapped to the admin
    role; the standalone runner binary authenticates this way

With AUTH_MODE=none (the default) every request is treated as an anonymous
admin. That is the right trade for the common single-operator deployment on
a private network, and it keeps the middleware stack identical in both
modes.

Authorization is delegated to internal/authz (casbin). Handlers declare the
permission they need:

	r.With(authn.Require(authz.ObjectConfig, authz.ActionWrite)).
	    Post("/targets", handler.CreateTarget)

Failures use the standard response envelope with AUTHENTICATION_ERROR (401)
or AUTHORIZATION_ERROR (403) codes.
*/
package auth
