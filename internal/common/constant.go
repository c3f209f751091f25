package common

// AuthorizationHeaderName carries "Bearer <access token>" on API requests.
const AuthorizationHeaderName = "Authorization"

// RefreshTokenBytes is the amount of randomness behind a refresh token.
const RefreshTokenBytes = 32
