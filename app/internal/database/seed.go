package database

import (
	"context"
	"fmt"
	"os"

	"mcnetwork/app/internal/models"

	"gopkg.in/yaml.v3"
)

type serversFile struct {
	Servers []seedServer `yaml:"servers"`
}

type seedServer struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Active       *bool  `yaml:"active"`
	DisplayOrder int    `yaml:"display_order"`
}

// LoadServersFile reads a YAML registry seed:
//
//	servers:
//	  - id: lobby
//	    name: Lobby
//	    host: play.example.net
//	    port: 25565
//	    active: true
//
// A missing file yields no servers. Port defaults to 25565 and active to true.
func LoadServersFile(path string) ([]models.Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var f serversFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	servers := make([]models.Server, 0, len(f.Servers))
	for i, s := range f.Servers {
		if s.ID == "" || s.Host == "" {
			return nil, fmt.Errorf("%s: server #%d needs id and host", path, i+1)
		}
		srv := models.Server{
			ID:           s.ID,
			Name:         s.Name,
			Host:         s.Host,
			Port:         s.Port,
			Active:       s.Active == nil || *s.Active,
			DisplayOrder: s.DisplayOrder,
		}
		if srv.Port == 0 {
			srv.Port = 25565
		}
		if srv.Name == "" {
			srv.Name = srv.ID
		}
		servers = append(servers, srv)
	}
	return servers, nil
}

// Seed upserts every server into the registry
func Seed(ctx context.Context, reg Registry, servers []models.Server) error {
	for _, s := range servers {
		if err := reg.UpsertServer(ctx, s); err != nil {
			return fmt.Errorf("seed server %s: %w", s.ID, err)
		}
	}
	return nil
}
