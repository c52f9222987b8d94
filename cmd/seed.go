package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	ngomodel "github.com/frahmantamala/ngo-accountability/internal/core/datamodel/ngo"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample NGOs for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to open gorm connection: %v", err)
		}

		if clearData {
			if err := gormDB.Exec("DELETE FROM pending_transactions").Error; err != nil {
				log.Fatalf("failed to clear pending_transactions: %v", err)
			}
			if err := gormDB.Exec("DELETE FROM ngos").Error; err != nil {
				log.Fatalf("failed to clear ngos: %v", err)
			}
			fmt.Println("Cleared existing data")
		}

		ngos := []ngomodel.NGO{
			{Name: "Yayasan Peduli Sesama", AccountNumber: "1102000301", ContactEmail: "admin@pedulisesama.or.id"},
			{Name: "Yayasan Harapan Anak", AccountNumber: "1102000302", ContactEmail: "info@harapananak.or.id"},
			{Name: "Lembaga Bantuan Pangan", AccountNumber: "1102000303", ContactEmail: "kontak@bantuanpangan.or.id"},
			{Name: "Yayasan Pendidikan Desa", AccountNumber: "1102000304", ContactEmail: "sekretariat@pendidikandesa.or.id"},
		}

		for _, n := range ngos {
			result := gormDB.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "account_number"}},
				DoNothing: true,
			}).Create(&n)
			if result.Error != nil {
				log.Fatalf("failed to seed NGO %s: %v", n.Name, result.Error)
			}
			if result.RowsAffected > 0 {
				fmt.Printf("Seeded NGO: %s (%s)\n", n.Name, n.AccountNumber)
			} else {
				fmt.Printf("NGO already exists: %s\n", n.AccountNumber)
			}
		}

		fmt.Println("NGO directory seeded successfully")
	},
}
