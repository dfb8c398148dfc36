package catalog

// Categories is the built-in construction materials catalog.
var Categories = []Category{
	{
		Key:  "wallMaterials",
		Name: "Стеновые материалы",
		Products: []Product{
			{
				SKU:          "KB-001",
				Name:         "Кирпич керамический М-150",
				Price:        55,
				Unit:         "шт",
				Availability: "В наличии",
				Stock:        50000,
				Description:  "Полнотелый керамический кирпич, прочность М-150",
			},
			{
				SKU:          "KB-002",
				Name:         "Кирпич силикатный М-200",
				Price:        45,
				Unit:         "шт",
				Availability: "В наличии",
				Stock:        30000,
				Description:  "Белый силикатный кирпич повышенной прочности",
			},
			{
				SKU:          "GB-001",
				Name:         "Газоблок 600x300x200мм D500",
				Price:        2800,
				Unit:         "м³",
				Availability: "В наличии",
				Stock:        500,
				Description:  "Автоклавный газобетон, плотность 500 кг/м³",
			},
			{
				SKU:          "PB-001",
				Name:         "Пеноблок 600x300x200мм D600",
				Price:        2500,
				Unit:         "м³",
				Availability: "Под заказ",
				Stock:        0,
				Description:  "Пенобетонный блок, срок изготовления 5 дней",
			},
		},
	},
	{
		Key:  "roofing",
		Name: "Кровельные материалы",
		Products: []Product{
			{
				SKU:          "MP-001",
				Name:         "Металлочерепица Монтеррей 0.5мм",
				Price:        2500,
				Unit:         "м²",
				Availability: "В наличии",
				Stock:        1000,
				Description:  "Полиэстер, цвета: RAL3005, RAL6005, RAL8017",
			},
			{
				SKU:          "MP-002",
				Name:         "Профнастил С-21 оцинкованный",
				Price:        1800,
				Unit:         "м²",
				Availability: "В наличии",
				Stock:        2000,
				Description:  "Толщина 0.45мм, высота волны 21мм",
			},
			{
				SKU:          "BM-001",
				Name:         "Битумная черепица Shinglas",
				Price:        850,
				Unit:         "м²",
				Availability: "В наличии",
				Stock:        500,
				Description:  "Гибкая черепица, коллекция Классик",
			},
			{
				SKU:          "ON-001",
				Name:         "Ондулин красный",
				Price:        650,
				Unit:         "лист",
				Availability: "В наличии",
				Stock:        300,
				Description:  "Размер листа 2000x950мм",
			},
		},
	},
	{
		Key:  "insulation",
		Name: "Утеплители",
		Products: []Product{
			{
				SKU:          "MW-001",
				Name:         "Минвата Rockwool 100мм",
				Price:        1950,
				Unit:         "м²",
				Availability: "В наличии",
				Stock:        800,
				Description:  "Плотность 35 кг/м³, негорючая",
			},
			{
				SKU:          "PP-001",
				Name:         "Пенопласт ПСБ-С 25 (100мм)",
				Price:        850,
				Unit:         "м²",
				Availability: "В наличии",
				Stock:        1500,
				Description:  "Плотность 25 кг/м³, фасадный",
			},
			{
				SKU:          "XPS-001",
				Name:         "Экструдированный пенополистирол 50мм",
				Price:        1200,
				Unit:         "м²",
				Availability: "В наличии",
				Stock:        600,
				Description:  "Техноплекс, для фундамента и цоколя",
			},
		},
	},
	{
		Key:  "dryMixes",
		Name: "Сухие смеси",
		Products: []Product{
			{
				SKU:          "CM-001",
				Name:         "Цемент М500 Д0",
				Price:        3200,
				Unit:         "мешок 50кг",
				Availability: "В наличии",
				Stock:        2000,
				Description:  "Портландцемент без добавок",
			},
			{
				SKU:          "SM-001",
				Name:         "Штукатурка гипсовая Knauf Rotband",
				Price:        850,
				Unit:         "мешок 30кг",
				Availability: "В наличии",
				Stock:        500,
				Description:  "Для внутренних работ, слой 5-50мм",
			},
			{
				SKU:          "SM-002",
				Name:         "Плиточный клей Ceresit CM11",
				Price:        650,
				Unit:         "мешок 25кг",
				Availability: "В наличии",
				Stock:        800,
				Description:  "Для керамической плитки, внутренние и наружные работы",
			},
			{
				SKU:          "SM-003",
				Name:         "Наливной пол самонивелирующийся",
				Price:        950,
				Unit:         "мешок 25кг",
				Availability: "В наличии",
				Stock:        300,
				Description:  "Толщина слоя 2-100мм, прочность 30МПа",
			},
		},
	},
	{
		Key:  "finishing",
		Name: "Отделочные материалы",
		Products: []Product{
			{
				SKU:          "GKL-001",
				Name:         "Гипсокартон Knauf 12.5мм",
				Price:        1650,
				Unit:         "лист",
				Availability: "В наличии",
				Stock:        1000,
				Description:  "Стеновой, размер 2500x1200x12.5мм",
			},
			{
				SKU:          "LAM-001",
				Name:         "Ламинат 33 класс дуб",
				Price:        2200,
				Unit:         "м²",
				Availability: "В наличии",
				Stock:        500,
				Description:  "Толщина 12мм, с фаской, влагостойкий",
			},
			{
				SKU:          "OB-001",
				Name:         "Обои виниловые под покраску",
				Price:        850,
				Unit:         "рулон",
				Availability: "В наличии",
				Stock:        200,
				Description:  "Флизелиновая основа, ширина 1.06м, длина 25м",
			},
		},
	},
}

// DeliveryOptions lists priced delivery services.
var DeliveryOptions = []DeliveryOption{
	{Name: "По городу до 5 тонн", Price: 15000, Description: "Доставка в пределах города"},
	{Name: "За город (за 1 км)", Price: 150, Description: "Дополнительно к городской доставке"},
	{Name: "Разгрузка манипулятором", Price: 10000, Description: "Разгрузка тяжелых материалов"},
}

// Promotions lists running offers.
var Promotions = []Promotion{
	{Name: "Скидка на объем", Description: "При покупке от 1 млн тенге - скидка 5%, от 2 млн - 10%"},
	{Name: "Комплексная поставка", Description: "При заказе материалов для всего объекта - индивидуальные условия"},
}

// WarehouseContacts is the store contact card shown on location requests.
var WarehouseContacts = Contacts{
	Warehouse: "г. Алматы, ул. Рыскулова 57",
	Phone:     "+7 777 123 45 67",
	WorkHours: "Пн-Сб: 9:00-18:00, Вс: выходной",
}
