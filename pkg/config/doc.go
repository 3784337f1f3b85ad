// Package config loads broker settings from STOMPD_* environment variables
// and the optional YAML users file.
//
// A .env file in the working directory is read first; variables already set
// in the environment take precedence. The serve command applies its flags
// on top and then calls Validate.
package config
