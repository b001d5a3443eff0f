package page

import "html/template"

const layout = `{{define "top"}}<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Checkin</title></head>
<body>
<h1>Checkin</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{end}}
{{define "bottom"}}</body>
</html>
{{end}}`

var loginTemplate = template.Must(template.New("login").Parse(layout + `{{template "top" .}}
<p>This is an ActivityPub geosocial client. To log in, you need an account on a compatible server.</p>
<form method="get" action="/login">
<input name="handle" placeholder="username@example.com">
<button type="submit">Log In</button>
</form>
{{template "bottom" .}}`))

var inboxTemplate = template.Must(template.New("inbox").Parse(layout + `{{template "top" .}}
<form method="get" action="/places">
<input name="lat" placeholder="latitude"> <input name="lon" placeholder="longitude">
<button type="submit">Nearby places</button>
</form>
<h2>Latest activities</h2>
{{if .Activities}}<ul class="inbox-activities">
{{range .Activities}}<li>
<span class="actor">{{if .ActorIcon}}<img src="{{.ActorIcon}}" alt="" width="32" height="32"> {{end}}{{.ActorName}}</span>
<p>{{.Summary}}</p>
<small>{{.When}}</small>
</li>
{{end}}</ul>{{else}}<p>No activities.</p>{{end}}
<form method="post" action="/logout"><button type="submit">Log Out</button></form>
{{template "bottom" .}}`))

var placesTemplate = template.Must(template.New("places").Parse(layout + `{{template "top" .}}
<h2>Nearby places</h2>
{{if .Places}}<ul>
{{range .Places}}<li>
<form method="post" action="/checkin">
{{.Name}}
<input type="hidden" name="place" value="{{.ID}}">
<input name="content" placeholder="Say something">
<select name="visibility">
<option value="public">public</option>
<option value="unlisted">unlisted</option>
<option value="followers">followers</option>
</select>
<button type="submit">Checkin</button>
</form>
</li>
{{end}}</ul>{{else}}<p>No places found.</p>{{end}}
<p><a href="/">Back</a></p>
{{template "bottom" .}}`))
