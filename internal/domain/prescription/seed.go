package prescription

// DemoPrescriptions returns the sample prescriptions the dashboard starts with
func DemoPrescriptions() []Prescription {
	return []Prescription{
		{
			ID:               "rx-1001",
			Name:             "Lisinopril",
			Dosage:           "10mg",
			Instructions:     "Take once daily with food",
			Status:           StatusFilled,
			RefillsRemaining: 3,
			LastFilled:       "2023-02-15",
			NextRefillDate:   "2023-03-15",
			Pharmacy:         "MedPlus Pharmacy",
			Doctor:           "Smith",
			SideEffects:      []string{"Dizziness", "Headache", "Dry cough"},
			Cost:             &Cost{Retail: 45.99, WithInsurance: 10.0, Copay: 10.0},
		},
		{
			ID:               "rx-1002",
			Name:             "Metformin",
			Dosage:           "500mg",
			Instructions:     "Take twice daily with meals",
			Status:           StatusInProgress,
			RefillsRemaining: 2,
			LastFilled:       "2023-02-01",
			NextRefillDate:   "2023-03-01",
			Pharmacy:         "HealthRx",
			Doctor:           "Johnson",
			Urgent:           true,
			SideEffects:      []string{"Nausea", "Diarrhea", "Stomach pain"},
			Cost:             &Cost{Retail: 32.5, WithInsurance: 5.0, Copay: 5.0},
		},
		{
			ID:               "rx-1003",
			Name:             "Atorvastatin",
			Dosage:           "20mg",
			Instructions:     "Take once daily in the evening",
			Status:           StatusPartial,
			RefillsRemaining: 5,
			LastFilled:       "2023-01-15",
			NextRefillDate:   "2023-02-15",
			Pharmacy:         "CarePharm",
			Doctor:           "Williams",
			SideEffects:      []string{"Muscle pain", "Joint pain", "Fatigue"},
			Allergies:        []string{"Grapefruit juice may interact with this medication"},
			Cost:             &Cost{Retail: 78.25, WithInsurance: 15.5, Copay: 15.5},
		},
		{
			ID:               "rx-1004",
			Name:             "Levothyroxine",
			Dosage:           "75mcg",
			Instructions:     "Take on an empty stomach, 30-60 minutes before breakfast",
			Status:           StatusReadyForPickup,
			RefillsRemaining: 1,
			LastFilled:       "2023-01-30",
			NextRefillDate:   "2023-03-01",
			Pharmacy:         "MedPlus Pharmacy",
			Doctor:           "Brown",
			Urgent:           true,
			SideEffects:      []string{"Weight changes", "Increased appetite", "Nervousness"},
			Cost:             &Cost{Retail: 42.75, WithInsurance: 8.5, Copay: 8.5},
		},
	}
}
