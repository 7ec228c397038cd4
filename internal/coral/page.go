package coral

import "html/template"

type pageData struct {
	Prediction string
	ImageURL   string
	Error      string
}

var indexPage = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Coral Bleaching Classifier</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: system-ui, sans-serif; background: #01161e; color: #e6f7ff; margin: 0; }
        .card { max-width: 560px; margin: 40px auto; background: #0b2530; border-radius: 10px; padding: 24px; }
        h1 { color: #67e8f9; margin-top: 0; }
        .result { margin-top: 20px; font-size: 20px; }
        .Bleached { color: #f87171; }
        .Healthy { color: #4ade80; }
        .error { color: #f87171; }
        img { max-width: 100%; border-radius: 6px; margin-top: 12px; }
        button { background: #0891b2; color: #fff; border: 0; border-radius: 6px; padding: 8px 16px; cursor: pointer; }
    </style>
</head>
<body>
    <div class="card">
        <h1>Coral Bleaching Classifier</h1>
        <form method="post" enctype="multipart/form-data">
            <input type="file" name="image" accept="image/*" required>
            <button type="submit">Classify</button>
        </form>
        {{if .Error}}<p class="error">{{.Error}}</p>{{end}}
        {{if .Prediction}}
        <div class="result">Prediction: <strong class="{{.Prediction}}">{{.Prediction}}</strong></div>
        {{end}}
        {{if .ImageURL}}<img src="{{.ImageURL}}" alt="Uploaded coral">{{end}}
    </div>
</body>
</html>
`))
