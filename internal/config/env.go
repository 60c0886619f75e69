package config

import "github.com/joho/godotenv"

// LoadEnv loads variables from a .env file in the working directory into the
// process environment. Variables that are already set are not overridden.
// The returned error satisfies os.IsNotExist when there is no .env file.
func LoadEnv(filenames ...string) error {
	return godotenv.Load(filenames...)
}
