package main

import (
	"fmt"
	"os"

	"github.com/uplinehq/upline-backend/internal/app"
	"github.com/uplinehq/upline-backend/internal/utils"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Start()

	port := utils.GetEnv("PORT", "8080", a.Log)
	if err := a.Run(":" + port); err != nil {
		a.Log.Error("server exited", "error", err)
		os.Exit(1)
	}
}
