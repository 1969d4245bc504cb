package httpx

import "errors"

var errNoRoute = errors.New("no route matches the request")
