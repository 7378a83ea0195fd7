package feed

import (
	"github.com/google/uuid"
	"github.com/hitoshi/amiot/internal/model"
)

// seedNamespace はシード記事のIDを導出するためのUUID名前空間。
var seedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("amiot:seed"))

// SeedID はタイトルから決定的なシード記事のIDを生成する。
func SeedID(title string) string {
	return uuid.NewSHA1(seedNamespace, []byte(title)).String()
}

var defaultSeed = []model.FeedItem{
	{
		Title:          "Chile lidera en energías renovables en Latinoamérica",
		Summary:        "Chile se posiciona como uno de los países líderes en la transición hacia energías renovables en la región. El país ha alcanzado un 40% de su matriz energética proveniente de fuentes limpias, superando las metas establecidas para 2025.",
		PublishedLabel: LabelTwoHours,
		Category:       "Tecnología",
	},
	{
		Title:          "Nuevo proyecto de IoT en la agricultura chilena",
		Summary:        "Se lanza un innovador proyecto que utiliza sensores IoT para optimizar el riego y monitoreo de cultivos en el Valle Central. Esta tecnología permitirá a los agricultores reducir el consumo de agua en un 30%.",
		PublishedLabel: LabelFiveHours,
		Category:       "Innovación",
	},
	{
		Title:          "Santiago implementa sistema inteligente de transporte",
		Summary:        "La capital chilena anuncia la implementación de un sistema de transporte público inteligente que utilizará sensores IoT para optimizar rutas y reducir tiempos de espera. El proyecto comenzará en las comunas del sector oriente.",
		PublishedLabel: LabelOneDay,
		Category:       "Ciudad",
	},
	{
		Title:          "Chile avanza en digitalización de servicios públicos",
		Summary:        "El gobierno anuncia nuevas plataformas digitales que facilitarán el acceso a servicios públicos. Se espera que más de 2 millones de chilenos se beneficien de estos avances tecnológicos en los próximos meses.",
		PublishedLabel: LabelTwoDays,
		Category:       "Gobierno",
	},
	{
		Title:          "Startups chilenas destacan en feria tecnológica internacional",
		Summary:        "Cinco startups chilenas fueron reconocidas en la feria tecnológica más importante de Latinoamérica. Las empresas se enfocan en soluciones IoT para minería, agricultura y ciudades inteligentes.",
		PublishedLabel: LabelThreeDays,
		Category:       "Negocios",
	},
	{
		Title:          "Proyecto de monitoreo ambiental con IoT en la Patagonia",
		Summary:        "Científicos chilenos implementan una red de sensores IoT en la Patagonia para monitorear el cambio climático y la biodiversidad. El proyecto es el más grande de su tipo en Sudamérica.",
		PublishedLabel: LabelFourDays,
		Category:       "Medio Ambiente",
	},
	{
		Title:          "Chile desarrolla tecnología IoT para la minería",
		Summary:        "Empresas mineras chilenas adoptan soluciones IoT para mejorar la seguridad y eficiencia en sus operaciones. Se espera reducir accidentes en un 25% y aumentar la productividad.",
		PublishedLabel: LabelFiveDays,
		Category:       "Minería",
	},
	{
		Title:          "Valparaíso se convierte en ciudad inteligente",
		Summary:        "Valparaíso inicia su transformación hacia una ciudad inteligente con la instalación de sensores IoT para gestión de residuos, iluminación pública y monitoreo de calidad del aire. El proyecto será un modelo para otras ciudades portuarias.",
		PublishedLabel: LabelOneWeek,
		Category:       "Ciudad",
	},
}

// DefaultSeed は固定のシード記事8件を返す。
// 戻り値は呼び出し毎に新しいスライスで、IDはタイトルから決定的に導出される。
func DefaultSeed() []model.FeedItem {
	items := make([]model.FeedItem, len(defaultSeed))
	for i, item := range defaultSeed {
		item.ID = SeedID(item.Title)
		items[i] = item
	}
	return items
}
