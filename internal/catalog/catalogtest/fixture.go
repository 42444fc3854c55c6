// Package catalogtest provides a small Douala catalog for tests.
package catalogtest

import (
	"service-intake/internal/catalog"
	"service-intake/internal/models"
)

// Seed mirrors configs/catalog.yaml.
func Seed() *catalog.Seed {
	return &catalog.Seed{
		Services: []models.Service{
			{Code: "plomberie", Name: "Plomberie", Description: "Réparation de fuite d'eau, robinet, tuyauterie et sanitaires", Synonyms: []string{"plombier", "fuite", "tuyau", "robinet"}, MinPrice: 5000, MaxPrice: 30000, AvgRating: 4.5, TotalBookings: 120},
			{Code: "electricite", Name: "Électricité", Description: "Installation et dépannage électrique, courant, prises et disjoncteur", Synonyms: []string{"électricien", "electricien", "courant", "panne"}, MinPrice: 5000, MaxPrice: 40000, AvgRating: 4.3, TotalBookings: 95},
			{Code: "menage", Name: "Ménage", Description: "Nettoyage de maison, bureau et repassage", Synonyms: []string{"nettoyage", "repassage"}, MinPrice: 3000, MaxPrice: 15000, AvgRating: 4.6, TotalBookings: 200},
			{Code: "climatisation", Name: "Climatisation", Description: "Installation, entretien et réparation de climatiseur", Synonyms: []string{"clim", "climatiseur", "froid"}, MinPrice: 15000, MaxPrice: 80000, AvgRating: 4.1, TotalBookings: 40},
			{Code: "peinture", Name: "Peinture", Description: "Peinture intérieure et extérieure de maison", Synonyms: []string{"peintre"}, MinPrice: 20000, MaxPrice: 150000, AvgRating: 4, TotalBookings: 0},
			{Code: "menuiserie", Name: "Menuiserie", Description: "Fabrication et réparation de meubles, portes et fenêtres en bois", Synonyms: []string{"menuisier", "bois"}, MinPrice: 10000, MaxPrice: 60000, AvgRating: 4.2, TotalBookings: 30},
		},
		Zones: []models.Zone{
			{Code: "cm", Name: "Cameroun", Level: models.ZoneCountry},
			{Code: "littoral", Name: "Littoral", ParentCode: "cm", Level: models.ZoneRegion},
			{Code: "douala", Name: "Douala", ParentCode: "littoral", Level: models.ZoneCity, Latitude: 4.0511, Longitude: 9.7679, RadiusKm: 20},
			{Code: "bonamoussadi", Name: "Bonamoussadi", ParentCode: "douala", Level: models.ZoneDistrict, Latitude: 4.0903, Longitude: 9.7431, RadiusKm: 3},
			{Code: "makepe", Name: "Makepe", ParentCode: "douala", Level: models.ZoneDistrict, Latitude: 4.079, Longitude: 9.756, RadiusKm: 2},
			{Code: "deido", Name: "Deido", ParentCode: "douala", Level: models.ZoneDistrict, Latitude: 4.0625, Longitude: 9.7111, RadiusKm: 2},
			{Code: "akwa", Name: "Akwa", ParentCode: "douala", Level: models.ZoneDistrict, Latitude: 4.0469, Longitude: 9.7046, RadiusKm: 2},
			{Code: "bonapriso", Name: "Bonapriso", ParentCode: "douala", Level: models.ZoneDistrict, Latitude: 4.0294, Longitude: 9.6952, RadiusKm: 2},
			{Code: "centre", Name: "Centre", ParentCode: "cm", Level: models.ZoneRegion},
			{Code: "yaounde", Name: "Yaoundé", ParentCode: "centre", Level: models.ZoneCity, Latitude: 3.848, Longitude: 11.5021, RadiusKm: 25},
			{Code: "bastos", Name: "Bastos", ParentCode: "yaounde", Level: models.ZoneDistrict, Latitude: 3.8895, Longitude: 11.5136, RadiusKm: 2},
		},
		Availability: []models.Availability{
			{ServiceCode: "plomberie", ZoneCode: "bonamoussadi", AvgResponseMinutes: 45, Active: true},
			{ServiceCode: "plomberie", ZoneCode: "makepe", AvgResponseMinutes: 30, Active: true},
			{ServiceCode: "plomberie", ZoneCode: "deido", AvgResponseMinutes: 50, Active: true},
			{ServiceCode: "plomberie", ZoneCode: "akwa", AvgResponseMinutes: 90, Active: true},
			{ServiceCode: "plomberie", ZoneCode: "bastos", AvgResponseMinutes: 40, Active: true},
			{ServiceCode: "electricite", ZoneCode: "bonamoussadi", AvgResponseMinutes: 40, Active: true},
			{ServiceCode: "electricite", ZoneCode: "akwa", AvgResponseMinutes: 35, Active: true},
			{ServiceCode: "electricite", ZoneCode: "bonapriso", AvgResponseMinutes: 70, Active: true},
			{ServiceCode: "menage", ZoneCode: "bonamoussadi", AvgResponseMinutes: 120, Active: true},
			{ServiceCode: "menage", ZoneCode: "makepe", AvgResponseMinutes: 55, Active: true},
			{ServiceCode: "menage", ZoneCode: "bonapriso", AvgResponseMinutes: 60, Active: true},
			{ServiceCode: "climatisation", ZoneCode: "akwa", AvgResponseMinutes: 180, Active: true},
			{ServiceCode: "menuiserie", ZoneCode: "deido", AvgResponseMinutes: 100, Active: false},
		},
	}
}

func New() *catalog.MemoryCatalog {
	return catalog.NewMemoryCatalog(Seed())
}
