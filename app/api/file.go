package api

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// readUpload returns the bytes and base name of the multipart "file" field.
func readUpload(c *fiber.Ctx) ([]byte, string, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, "", ErrMissingFile()
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, filepath.Base(fileHeader.Filename), nil
}

// titleOf turns "IS_456-2000.pdf" into "IS 456 2000".
func titleOf(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.NewReplacer("_", " ", "-", " ").Replace(name)
}
