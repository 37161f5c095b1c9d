package main

import (
	"go.uber.org/fx"

	"github.com/mustafamuhammed29/handyland-sub001/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
